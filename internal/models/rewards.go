package models

// MaxPicksPerCycle caps a user's ranked pick set for one cycle.
const MaxPicksPerCycle = 10

// RankRewards is the chip reward for a correct pick at a given rank. Ranks
// beyond the table and non-winning picks earn zero; there is never a
// penalty for a wrong pick.
var RankRewards = map[int]int64{
	1:  20,
	2:  18,
	3:  16,
	4:  14,
	5:  12,
	6:  10,
	7:  8,
	8:  6,
	9:  4,
	10: 2,
}

// RankWeights feeds the market-implied probability calculation. Ranks
// outside the table weigh 1.
var RankWeights = map[int]int64{
	1:  10,
	2:  9,
	3:  8,
	4:  7,
	5:  6,
	6:  5,
	7:  4,
	8:  3,
	9:  2,
	10: 1,
}

// CurationRankRewards is the per-position chip pool for the curation pass.
// Tied submitters split the pool of the positions their group spans.
var CurationRankRewards = map[int]int64{
	1: 40,
	2: 20,
	3: 10,
}
