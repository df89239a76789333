package puzzle

import (
	"math/rand"
	"sync"
	"time"
)

// 打乱步数
const (
	MinShuffleMoves     = 100
	DefaultShuffleMoves = 200
)

// Shuffle 从已还原状态出发，让空格随机走 moves 步合法移动
// 每一步都是合法交换，因此结果必然可解；走回已还原状态也不重新打乱
func Shuffle(rng *rand.Rand, moves int) Board {
	if moves < MinShuffleMoves {
		moves = MinShuffleMoves
	}
	b := Solved()
	empty := Cells - 1
	for i := 0; i < moves; i++ {
		candidates := Neighbors(empty)
		target := candidates[rng.Intn(len(candidates))]
		b[empty], b[target] = b[target], b[empty]
		empty = target
	}
	return b
}

// Shuffler 可在多个请求间共享的打乱生成器
type Shuffler struct {
	mu    sync.Mutex
	rng   *rand.Rand
	moves int
}

// NewShuffler 创建打乱生成器，seed 为 0 时使用当前时间；步数规则与 Shuffle 相同
func NewShuffler(seed int64, moves int) *Shuffler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if moves < MinShuffleMoves {
		moves = MinShuffleMoves
	}
	return &Shuffler{
		rng:   rand.New(rand.NewSource(seed)),
		moves: moves,
	}
}

// Next 生成一个新的打乱棋盘
func (s *Shuffler) Next() Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Shuffle(s.rng, s.moves)
}
