package evaluator

// DefaultMaxStringBytes is the string size limit used when a Budget leaves it unset.
const DefaultMaxStringBytes = 1 << 20

// Budget holds the resource limits for evaluating one expression.
type Budget struct {
	// MaxStringBytes bounds the size of any string a line produces.
	// Zero means DefaultMaxStringBytes; negative disables the check.
	MaxStringBytes int
}

func (b Budget) maxStringBytes() int {
	if b.MaxStringBytes == 0 {
		return DefaultMaxStringBytes
	}
	return b.MaxStringBytes
}
