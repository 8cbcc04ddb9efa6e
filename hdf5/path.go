package hdf5

import (
	"fmt"
	"path"
	"strings"
)

// ParseAttrPath splits an attribute path of the form "/group/object@name"
// at its last '@'. An empty object path names the root group.
func ParseAttrPath(p string) (objectPath, name string, err error) {
	objectPath, name, ok := cutLast(p, "@")
	switch {
	case !ok:
		return "", "", fmt.Errorf("attribute path %q has no '@'", p)
	case name == "":
		return "", "", fmt.Errorf("attribute path %q has an empty name", p)
	}
	if !strings.HasPrefix(objectPath, "/") {
		objectPath = "/" + objectPath
	}
	return objectPath, name, nil
}

// JoinAttrPath is the inverse of ParseAttrPath.
func JoinAttrPath(objectPath, name string) string {
	return path.Join("/", objectPath) + "@" + name
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
