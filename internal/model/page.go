package model

// Page はオフセットページングの指定。Numberは1始まり。
type Page struct {
	Number int
	Limit  int
}

const (
	// MaxPageLimit は1ページあたりの最大件数。
	MaxPageLimit = 100
	// MaxPageNumber は指定できる最大のページ番号。
	MaxPageNumber = 10000
)

// NewPage は既定値を補ったPageを生成する。
// 1未満のページ番号は1、1未満のlimitはdefaultLimitとして扱い、
// どちらも上限（MaxPageNumber・MaxPageLimit）に丸める。
func NewPage(number, limit, defaultLimit int) Page {
	if number < 1 {
		number = 1
	}
	if number > MaxPageNumber {
		number = MaxPageNumber
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Number: number, Limit: limit}
}

// Offset はスキップ件数 (Number-1)*Limit を返す。
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// TotalPages は総件数からページ数 ceil(total/limit) を返す。
func TotalPages(total, limit int) int {
	if limit < 1 || total < 1 {
		return 0
	}
	return (total + limit - 1) / limit
}
