package util

import "log"

// Debug is the highest DPrintf level that is printed. Level 0 messages
// (warnings and errors) are always printed.
var Debug uint64 = 1

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func Max(n uint64, m uint64) uint64 {
	if n > m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether a+b wraps around 2^64.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
