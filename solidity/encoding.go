package solidity

import (
	"fmt"
	"math/big"
)

// MaxVoteOptions is the number of options a uint256 bitmask can hold.
const MaxVoteOptions = 256

// EncodeVoteBitmask ORs the selected option indexes into a bitmask, bit i
// set for option i. An empty selection is 0 whatever the number of options.
func EncodeVoteBitmask(selected []int, numOptions int) (*big.Int, error) {
	mask := new(big.Int)
	for _, s := range selected {
		if s < 0 || s >= numOptions {
			return nil, fmt.Errorf("option %d out of range [0, %d)", s, numOptions)
		}
		if s >= MaxVoteOptions {
			return nil, fmt.Errorf("option %d does not fit in a uint256", s)
		}
		mask.SetBit(mask, s, 1)
	}
	return mask, nil
}

// EncodeVoteBitmasks returns the vote of a single question group.
func EncodeVoteBitmasks(selected []int, numOptions int) ([]*big.Int, error) {
	return EncodeVoteGroups([][]int{selected}, []int{numOptions})
}

// EncodeVoteGroups returns one bitmask per question group.
func EncodeVoteGroups(groups [][]int, numOptions []int) ([]*big.Int, error) {
	if len(groups) != len(numOptions) {
		return nil, fmt.Errorf("%d groups but %d option counts", len(groups), len(numOptions))
	}
	masks := make([]*big.Int, len(groups))
	for i, g := range groups {
		m, err := EncodeVoteBitmask(g, numOptions[i])
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		masks[i] = m
	}
	return masks, nil
}

// EncodeDateAsASCII packs the date as the ASCII bytes of YYMMDD read as a
// big-endian integer, the encoding the circuits use for MRZ dates.
func EncodeDateAsASCII(year, month, day int) (*big.Int, error) {
	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return nil, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return EncodeMRZDate(fmt.Sprintf("%02d%02d%02d", year%100, month, day))
}

// EncodeMRZDate packs a YYMMDD string like EncodeDateAsASCII.
func EncodeMRZDate(date string) (*big.Int, error) {
	if len(date) != 6 {
		return nil, fmt.Errorf("MRZ date %q must be 6 digits", date)
	}
	for i := 0; i < len(date); i++ {
		if date[i] < '0' || date[i] > '9' {
			return nil, fmt.Errorf("MRZ date %q must be 6 digits", date)
		}
	}
	return new(big.Int).SetBytes([]byte(date)), nil
}
