package tools

import (
	"testing"

	"github.com/maxatome/go-testdeep/td"
)

func TestLogInfoWidget(t *testing.T) {
	td.Cmp(t, LogInfoWidget([]string{"diskimage", "", "ПРИВЕТ"}, "#-"), []string{
		"#############",
		"# diskimage #",
		"#           #",
		"# ПРИВЕТ    #",
		"#############",
	})
	td.Cmp(t, LogInfoWidget([]string{"a"}, ""), []string{"*****", "* a *", "*****"})
}

func TestOsVersion(t *testing.T) {
	name, _, _, _ := OsVersion()
	td.CmpNot(t, name, "")
}
