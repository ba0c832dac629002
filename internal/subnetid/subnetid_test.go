package subnetid

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	valid := []string{
		"/",
		"/f01234",
		"/f01234/f05678",
		"/f01234/f05678/f09999",
	}
	for _, path := range valid {
		if _, err := Parse(path); err != nil {
			t.Errorf("Parse(%q) = %v, want nil", path, err)
		}
	}

	invalid := []struct {
		path string
		desc string
	}{
		{"", "empty"},
		{"f01234", "missing leading slash"},
		{"/f01234/", "trailing slash"},
		{"/f01234//f05678", "empty segment"},
	}
	for _, tc := range invalid {
		if _, err := Parse(tc.path); err == nil {
			t.Errorf("Parse(%q) [%s] = nil, want error", tc.path, tc.desc)
		}
	}
}

func TestParse_SentinelError(t *testing.T) {
	_, err := Parse("")
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error should wrap ErrInvalid, got: %v", err)
	}
}

func TestParent(t *testing.T) {
	root := MustParse("/")
	if _, ok := root.Parent(); ok {
		t.Error("root.Parent() should return ok=false")
	}

	child := MustParse("/f01234")
	parent, ok := child.Parent()
	if !ok {
		t.Fatal("child.Parent() should return ok=true")
	}
	if !parent.Equal(root) {
		t.Errorf("child.Parent() = %q, want root", parent)
	}

	grandchild := MustParse("/f01234/f05678")
	parent, ok = grandchild.Parent()
	if !ok {
		t.Fatal("grandchild.Parent() should return ok=true")
	}
	if want := MustParse("/f01234"); !parent.Equal(want) {
		t.Errorf("grandchild.Parent() = %q, want %q", parent, want)
	}
}

func TestSubnetActor(t *testing.T) {
	id := MustParse("/f01234/f05678")
	actor, err := id.SubnetActor()
	if err != nil {
		t.Fatalf("SubnetActor() = %v, want nil error", err)
	}
	if actor != "f05678" {
		t.Errorf("SubnetActor() = %q, want f05678", actor)
	}

	root := MustParse("/")
	if _, err := root.SubnetActor(); err == nil {
		t.Error("root.SubnetActor() should error")
	}
}

func TestMarshalTextRoundTrip(t *testing.T) {
	orig := MustParse("/f01234/f05678")
	text, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() = %v", err)
	}
	var decoded ID
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText() = %v", err)
	}
	if !decoded.Equal(orig) {
		t.Errorf("round-trip: got %q, want %q", decoded, orig)
	}
}
