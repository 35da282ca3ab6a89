package circuits

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// ErrInputTooLong is returned when a message does not fit in the fixed
// number of blocks or bits the circuit accepts.
var ErrInputTooLong = errors.New("circuits: input too long")

// BigIntArrayToN pads the big.Int array to n elements, if needed,
// with zeros.
func BigIntArrayToN(arr []*big.Int, n int) []*big.Int {
	bigArr := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		if i < len(arr) {
			bigArr[i] = arr[i]
		} else {
			bigArr[i] = big.NewInt(0)
		}
	}
	return bigArr
}

// BigIntArrayToStringArray converts the big.Int array to a string array.
func BigIntArrayToStringArray(arr []*big.Int, n int) []string {
	strArr := []string{}
	for _, b := range BigIntArrayToN(arr, n) {
		strArr = append(strArr, b.String())
	}
	return strArr
}

// BytesToBits expands every byte into eight bits, most significant bit
// first. Bits are ints so that they encode as JSON numbers.
func BytesToBits(data []byte) []int {
	bits := make([]int, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, int(b>>uint(i))&1)
		}
	}
	return bits
}

// BitsToN zero pads bits at the tail up to n. It fails if there are already
// more than n bits.
func BitsToN(bits []int, n int) ([]int, error) {
	if len(bits) > n {
		return nil, fmt.Errorf("%w: %d bits, max %d", ErrInputTooLong, len(bits), n)
	}
	out := make([]int, n)
	copy(out, bits)
	return out, nil
}

// PadSHA256 applies the SHA-256 message padding: a 0x80 byte, zeros up to
// 56 mod 64 and the message length in bits as a 64-bit big-endian integer.
// The result is always a multiple of 64 bytes.
func PadSHA256(msg []byte) []byte {
	padLen := SHA256BlockSize - (len(msg)+9)%SHA256BlockSize
	if padLen == SHA256BlockSize {
		padLen = 0
	}
	out := make([]byte, len(msg)+1+padLen+8)
	copy(out, msg)
	out[len(msg)] = 0x80
	binary.BigEndian.PutUint64(out[len(out)-8:], uint64(len(msg))*8)
	return out
}

// PadSHA256Blocks pads msg like PadSHA256 and then fills with zero bytes up
// to exactly blocks blocks, the layout of the circuits' fixed size SHA-256
// inputs. It fails when the padded message needs more blocks.
func PadSHA256Blocks(msg []byte, blocks int) ([]byte, error) {
	padded := PadSHA256(msg)
	size := blocks * SHA256BlockSize
	if len(padded) > size {
		return nil, fmt.Errorf("%w: %d bytes need %d blocks, max %d",
			ErrInputTooLong, len(msg), len(padded)/SHA256BlockSize, blocks)
	}
	out := make([]byte, size)
	copy(out, padded)
	return out, nil
}

// SHA256Blocks returns the number of blocks of the padded message.
func SHA256Blocks(msgLen int) int {
	return (msgLen + 9 + SHA256BlockSize - 1) / SHA256BlockSize
}

// SplitBigIntToChunks splits a non negative x into n chunks of the given
// bit width, least significant chunk first. It fails if x does not fit.
func SplitBigIntToChunks(x *big.Int, bits, n int) ([]*big.Int, error) {
	if x.Sign() < 0 {
		return nil, fmt.Errorf("circuits: cannot split negative integer")
	}
	if x.BitLen() > bits*n {
		return nil, fmt.Errorf("%w: %d bits do not fit in %d chunks of %d bits",
			ErrInputTooLong, x.BitLen(), n, bits)
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
	rest := new(big.Int).Set(x)
	chunks := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		chunks[i] = new(big.Int).And(rest, mask)
		rest.Rsh(rest, uint(bits))
	}
	return chunks, nil
}

// ReconstructFromChunks is the inverse of SplitBigIntToChunks.
func ReconstructFromChunks(chunks []*big.Int, bits int) *big.Int {
	x := new(big.Int)
	for i := len(chunks) - 1; i >= 0; i-- {
		x.Lsh(x, uint(bits))
		x.Or(x, chunks[i])
	}
	return x
}

// LowBits returns x reduced to its n least significant bits.
func LowBits(x *big.Int, n int) *big.Int {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(n)), big.NewInt(1))
	return new(big.Int).And(x, mask)
}
