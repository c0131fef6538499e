package engine

import "strings"

// housekeeping names are never deleted from a target, compared
// case-insensitively.
var housekeeping = map[string]struct{}{
	"system volume information": {},
	"$recycle.bin":              {},
	".ds_store":                 {},
	".localized":                {},
	".fseventsd":                {},
	".spotlight-v100":           {},
	".trashes":                  {},
	".gvfs":                     {},
	"lost+found":                {},
}

// Ignored reports whether name belongs to the housekeeping ignore-set.
func Ignored(name string) bool {
	_, ok := housekeeping[strings.ToLower(name)]
	return ok
}
