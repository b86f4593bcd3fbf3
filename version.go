package mysqlr

import (
	"strconv"
	"strings"
)

// serverVersion is the numeric part of a "select version()" string such as
// "8.0.36-0ubuntu0.22.04.1" or "10.11.6-MariaDB".
type serverVersion struct {
	major, minor, patch int
	mariaDB             bool
}

func parseServerVersion(s string) (serverVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return serverVersion{}, ErrEmptyVersion
	}
	v := serverVersion{mariaDB: strings.Contains(strings.ToLower(s), "mariadb")}

	num := s
	if i := strings.IndexFunc(s, func(r rune) bool { return r != '.' && (r < '0' || r > '9') }); i >= 0 {
		num = s[:i]
	}
	parts := strings.SplitN(num, ".", 3)
	dst := []*int{&v.major, &v.minor, &v.patch}
	for i, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return serverVersion{}, err
		}
		*dst[i] = n
	}
	return v, nil
}

// atLeast reports whether v >= major.minor.patch.
func (v serverVersion) atLeast(major, minor, patch int) bool {
	if v.major != major {
		return v.major > major
	}
	if v.minor != minor {
		return v.minor > minor
	}
	return v.patch >= patch
}

// SyntaxForVersion picks the upsert syntax for a server version string.
// Row aliases arrived in MySQL 8.0.19; MariaDB has never supported them.
// Unparseable versions get ValuesSyntax, which every server accepts.
func SyntaxForVersion(version string) Syntax {
	v, err := parseServerVersion(version)
	if err != nil || v.mariaDB || !v.atLeast(8, 0, 19) {
		return ValuesSyntax
	}
	return AliasSyntax
}
