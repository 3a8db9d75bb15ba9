package bingo

// HasWon 判断玩家是否达成宾果：任意一行、一列或两条对角线全部有效命中。
// 一个格子有效命中的条件是：它是中心 FREE 格，或者玩家标记了它且该格
// 号码确实已被叫出。后者防止玩家靠乱标未叫出的号码骗取胜利。
func HasWon(card Card, marked Marked, called []string) bool {
	if len(called) == 0 {
		return false
	}

	calledSet := make(map[string]bool, len(called))
	for _, n := range called {
		calledSet[n] = true
	}

	validMark := func(row, col int) bool {
		if row == CardSize/2 && col == CardSize/2 {
			return true
		}
		if !marked[row][col] {
			return false
		}
		return calledSet[card[row][col]]
	}

	// 行
	for row := 0; row < CardSize; row++ {
		win := true
		for col := 0; col < CardSize; col++ {
			if !validMark(row, col) {
				win = false
				break
			}
		}
		if win {
			return true
		}
	}

	// 列
	for col := 0; col < CardSize; col++ {
		win := true
		for row := 0; row < CardSize; row++ {
			if !validMark(row, col) {
				win = false
				break
			}
		}
		if win {
			return true
		}
	}

	// 主对角线
	win := true
	for i := 0; i < CardSize; i++ {
		if !validMark(i, i) {
			win = false
			break
		}
	}
	if win {
		return true
	}

	// 副对角线
	win = true
	for i := 0; i < CardSize; i++ {
		if !validMark(i, CardSize-1-i) {
			win = false
			break
		}
	}
	return win
}
