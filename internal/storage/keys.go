package storage

import (
	"strconv"
	"strings"
)

type keySet struct {
	prefix string
}

func newKeySet(prefix string) keySet {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "scancleanup"
	}
	return keySet{prefix: prefix}
}

func (k keySet) latest() string  { return k.prefix + ":cycles:latest" }
func (k keySet) history() string { return k.prefix + ":cycles:history" }
func (k keySet) channel() string { return k.prefix + ":cycles" }

func (k keySet) site(id int64) string {
	return k.prefix + ":sites:" + strconv.FormatInt(id, 10)
}
