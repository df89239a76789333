// Package puzzle 提供 15 数码拼图的棋盘模型与打乱生成器
package puzzle

// 棋盘尺寸
const (
	Size  = 4
	Cells = Size * Size
)

// Board 4x4 棋盘，按行展开为 16 格，0 表示空格
type Board [Cells]int

// Solved 返回已还原的棋盘 [1..15, 0]
func Solved() Board {
	var b Board
	for i := 0; i < Cells-1; i++ {
		b[i] = i + 1
	}
	return b
}

// EmptyIndex 返回空格下标，不存在时返回 -1
func (b Board) EmptyIndex() int {
	for i, v := range b {
		if v == 0 {
			return i
		}
	}
	return -1
}

// Valid 检查棋盘是否为 0..15 的一个排列
func (b Board) Valid() bool {
	var seen [Cells]bool
	for _, v := range b {
		if v < 0 || v >= Cells || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Neighbors 返回下标 i 的四邻域（按行列计算，不跨行）
func Neighbors(i int) []int {
	if i < 0 || i >= Cells {
		return nil
	}
	row, col := i/Size, i%Size
	moves := make([]int, 0, 4)
	if row > 0 {
		moves = append(moves, i-Size)
	}
	if row < Size-1 {
		moves = append(moves, i+Size)
	}
	if col > 0 {
		moves = append(moves, i-1)
	}
	if col < Size-1 {
		moves = append(moves, i+1)
	}
	return moves
}

// IsLegalMove 判断目标格是否与空格相邻
func IsLegalMove(b Board, target int) bool {
	if target < 0 || target >= Cells {
		return false
	}
	empty := b.EmptyIndex()
	if empty < 0 {
		return false
	}
	dr := abs(target/Size - empty/Size)
	dc := abs(target%Size - empty%Size)
	return dr+dc == 1
}

// ApplyMove 交换目标格与空格，非法移动原样返回
func ApplyMove(b Board, target int) Board {
	if !IsLegalMove(b, target) {
		return b
	}
	empty := b.EmptyIndex()
	b[empty], b[target] = b[target], b[empty]
	return b
}

// IsSolved 判断棋盘是否已还原
func IsSolved(b Board) bool {
	return b == Solved()
}

// Solvable 通过逆序数与空格行号的奇偶性判断棋盘能否还原
// 4 列棋盘：逆序数 + 空格距底行的行数 为偶数时可解
func Solvable(b Board) bool {
	if !b.Valid() {
		return false
	}
	inversions := 0
	for i := 0; i < Cells; i++ {
		if b[i] == 0 {
			continue
		}
		for j := i + 1; j < Cells; j++ {
			if b[j] != 0 && b[i] > b[j] {
				inversions++
			}
		}
	}
	rowFromBottom := Size - 1 - b.EmptyIndex()/Size
	return (inversions+rowFromBottom)%2 == 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
