package utils

import "strconv"

// MaxPage caps the page number so the computed offset stays far from overflow.
const MaxPage = 100000

// Page parses page/limit query values. page defaults to 1 and is capped at
// MaxPage; limit defaults to defLimit and is capped at maxLimit.
func Page(pageStr, limitStr string, defLimit, maxLimit int) (page, limit, offset int) {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	limit, err = strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		limit = defLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, (page - 1) * limit
}
