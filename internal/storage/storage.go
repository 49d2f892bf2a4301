// Package storage holds helpers shared by the object-store drivers.
package storage

import "strings"

// SplitPath splits a backend-native object path "bucket/key" into its bucket and key.
func SplitPath(p string) (bucket, key string) {
	p = strings.Trim(p, "/")
	bucket, key, _ = strings.Cut(p, "/")
	return bucket, key
}

// JoinPath joins a bucket and key into a backend-native path.
func JoinPath(bucket, key string) string {
	if key == "" {
		return bucket
	}
	return bucket + "/" + key
}

// DirPrefix returns the listing prefix of a key: "" for the bucket root, "key/" otherwise.
func DirPrefix(key string) string {
	key = strings.Trim(key, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

// ChildOf returns the immediate child name of key below prefix and whether it is a
// directory. ok is false when key is not below prefix.
func ChildOf(prefix, key string) (name string, isDir, ok bool) {
	if !strings.HasPrefix(key, prefix) || key == prefix {
		return "", false, false
	}
	rest := key[len(prefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], true, true
	}
	return rest, false, true
}
