// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package zkhelpers

import "testing"

func TestChildPath(t *testing.T) {
	if p := ChildPath("/", "a"); p != "/a" {
		t.Fatalf("Expecting /a, was %v", p)
	}

	if p := ChildPath("/a/b", "c"); p != "/a/b/c" {
		t.Fatalf("Expecting /a/b/c, was %v", p)
	}
}

func TestIsInternalNode(t *testing.T) {
	cases := map[string]bool{
		"/zookeeper":       true,
		"/zookeeper/quota": true,
		"/zookeeperish":    false,
		"/permitbucket":    false,
		"/":                false,
	}

	for path, want := range cases {
		if IsInternalNode(path) != want {
			t.Fatalf("IsInternalNode(%v) should be %v", path, want)
		}
	}
}
