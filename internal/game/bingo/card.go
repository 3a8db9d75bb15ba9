package bingo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
)

// CardSize 卡片边长
const CardSize = 5

// FreeCell 中心格的固定标记，永远视为已命中
const FreeCell = "FREE"

// 每列可取 15 个号码，共 75 个：B1-B15 I16-I30 N31-N45 G46-G60 O61-O75
const numbersPerColumn = 15

var columnLetters = [CardSize]string{"B", "I", "N", "G", "O"}

// Card 5x5 的宾果卡片，格子内容形如 "B7"、"N42"，中心为 FREE
type Card [CardSize][CardSize]string

// Marked 玩家本地的标记格，与 Card 一一对应
type Marked [CardSize][CardSize]bool

// NewMarked 返回初始标记格，中心 FREE 格预先标记
func NewMarked() Marked {
	var m Marked
	m[CardSize/2][CardSize/2] = true
	return m
}

// GenerateCard 从种子确定性地生成卡片：同一 (玩家, 房间) 永远得到同一张卡，
// 断线重连后无需持久化即可复原。
func GenerateCard(seed string) Card {
	if seed == "" {
		seed = strconv.FormatUint(rand.Uint64(), 10)
	}

	var card Card
	for col := 0; col < CardSize; col++ {
		min := col*numbersPerColumn + 1
		used := make(map[int]bool, CardSize)

		for row := 0; row < CardSize; row++ {
			// 中心格固定为 FREE，不参与取号
			if row == CardSize/2 && col == CardSize/2 {
				card[row][col] = FreeCell
				continue
			}

			num := deriveNumber(seed, col, row, min, used)
			used[num] = true
			card[row][col] = columnLetters[col] + strconv.Itoa(num)
		}
	}
	return card
}

// deriveNumber 由种子哈希推导列内唯一的号码。有限次重试后退化为
// 从推导值起顺序扫描，保证不会失败。
func deriveNumber(seed string, col, row, min int, used map[int]bool) int {
	const maxAttempts = 100

	num := min
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sum := sha256.Sum256(fmt.Appendf(nil, "%s-%d-%d-%d", seed, col, row, attempt))
		hashNum, err := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
		if err != nil {
			break
		}
		num = int(hashNum%numbersPerColumn) + min
		if !used[num] {
			return num
		}
	}

	// 兜底：从最后一次推导值开始找列内第一个未用的号码
	for i := 0; i < numbersPerColumn; i++ {
		candidate := (num-min+i)%numbersPerColumn + min
		if !used[candidate] {
			return candidate
		}
	}
	return num
}

// AllNumbers 返回全部 75 个带字母前缀的号码，按 B I N G O 列序
func AllNumbers() []string {
	all := make([]string, 0, CardSize*numbersPerColumn)
	for col := 0; col < CardSize; col++ {
		for n := 1; n <= numbersPerColumn; n++ {
			all = append(all, columnLetters[col]+strconv.Itoa(col*numbersPerColumn+n))
		}
	}
	return all
}

// DrawNumber 在未叫过的号码中等概率抽取一个。号码抽完时返回 false，
// 这是叫号器的正常终止信号，不是错误。
func DrawNumber(called []string) (string, bool) {
	calledSet := make(map[string]bool, len(called))
	for _, n := range called {
		calledSet[n] = true
	}

	available := make([]string, 0, CardSize*numbersPerColumn-len(called))
	for _, n := range AllNumbers() {
		if !calledSet[n] {
			available = append(available, n)
		}
	}

	if len(available) == 0 {
		return "", false
	}
	return available[rand.Intn(len(available))], true
}
