// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package updater

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/benchdisplay/benchmerge/aggregate"
)

// nameRE matches payload object names. The hash may not contain
// underscores, dots or slashes; everything after the first dot is the
// extension.
var nameRE = regexp.MustCompile(`^benchmark_([0-9A-Za-z][0-9A-Za-z-]*)(?:\.([0-9A-Za-z.]+))?$`)

// ParseName returns the commit hash and extension encoded in a
// payload name of the form benchmark_<hash>.<ext>.
// The aggregate document's own name is not a payload name.
func ParseName(name string) (hash, ext string, err error) {
	if name == aggregate.DocumentName {
		return "", "", fmt.Errorf("%q is the aggregate document", name)
	}
	m := nameRE.FindStringSubmatch(name)
	if m == nil {
		return "", "", fmt.Errorf("%q is not of the form %s<hash>.<ext>", name, aggregate.PayloadPrefix)
	}
	return m[1], m[2], nil
}

// skipReason returns why name is not a payload to merge, or "" if it
// is one.
func skipReason(name string) string {
	switch {
	case name == aggregate.DocumentName:
		return "aggregate document"
	case !strings.HasPrefix(name, aggregate.PayloadPrefix):
		return "not a benchmark payload"
	}
	return ""
}
