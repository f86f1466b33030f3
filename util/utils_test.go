package util

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTrimHex(t *testing.T) {
	c := qt.New(t)
	c.Assert(TrimHex("0xabcd"), qt.Equals, "abcd")
	c.Assert(TrimHex("0Xabcd"), qt.Equals, "abcd")
	c.Assert(TrimHex("abcd"), qt.Equals, "abcd")
	c.Assert(TrimHex("0"), qt.Equals, "0")
}

func TestSplitList(t *testing.T) {
	c := qt.New(t)
	c.Assert(SplitList(""), qt.HasLen, 0)
	c.Assert(SplitList("a, b,,c "), qt.DeepEquals, []string{"a", "b", "c"})
}
