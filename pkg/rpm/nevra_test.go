package rpm

import "testing"

func TestNormalizeEpoch(t *testing.T) {
	cases := map[string]string{
		"":       "0",
		"(none)": "0",
		"0":      "0",
		"00":     "0",
		"1":      "1",
		"02":     "2",
	}

	for in, want := range cases {
		if got := NormalizeEpoch(in); got != want {
			t.Errorf("NormalizeEpoch(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNEVRAEqual(t *testing.T) {
	a := NEVRA{Name: "foo", Epoch: "", Version: "1.0", Release: "1.el8", Arch: "x86_64"}
	b := NEVRA{Name: "foo", Epoch: "0", Version: "1.0", Release: "1.el8", Arch: "x86_64"}

	if !a.Equal(b) {
		t.Error("expected empty epoch to compare equal to zero epoch")
	}

	c := b
	c.Arch = "aarch64"
	if a.Equal(c) {
		t.Error("expected different arch to compare unequal")
	}
}

func TestArchFromArtifactName(t *testing.T) {
	cases := []struct {
		name string
		arch string
		ok   bool
	}{
		{"foo-1.2-3.el8.x86_64.rpm", "x86_64", true},
		{"foo-1.2-3.el8.noarch.rpm", "noarch", true},
		{"foo-1.2-3.el8.src.rpm", "src", true},
		{"build.log", "", false},
	}

	for _, tc := range cases {
		arch, err := ArchFromArtifactName(tc.name)
		if tc.ok && err != nil {
			t.Errorf("ArchFromArtifactName(%q) unexpected error: %v", tc.name, err)
			continue
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("ArchFromArtifactName(%q) expected error", tc.name)
			}
			continue
		}
		if arch != tc.arch {
			t.Errorf("ArchFromArtifactName(%q) = %q, want %q", tc.name, arch, tc.arch)
		}
	}
}

func TestIsDebugArtifactName(t *testing.T) {
	if !IsDebugArtifactName("foo-debuginfo-1.2-3.el8.x86_64.rpm") {
		t.Error("expected debuginfo artifact to be detected")
	}
	if !IsDebugArtifactName("foo-debugsource-1.2-3.el8.x86_64.rpm") {
		t.Error("expected debugsource artifact to be detected")
	}
	if IsDebugArtifactName("foo-debugger-1.2-3.el8.x86_64.rpm") {
		t.Error("foo-debugger is not a debug package")
	}
}

func TestParseArtifactName(t *testing.T) {
	n, err := ParseArtifactName("bash-completion-2.7-5.el8.noarch.rpm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := NEVRA{Name: "bash-completion", Epoch: "0", Version: "2.7", Release: "5.el8", Arch: "noarch"}
	if n != want {
		t.Errorf("ParseArtifactName = %+v, want %+v", n, want)
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.2", "1.10", -1},
		{"2.0", "1.9", 1},
		{"1.0", "1.0.1", -1},
		{"1.0a", "1.0b", -1},
	}

	for _, tc := range cases {
		if got := CompareVersions(tc.a, tc.b); got != tc.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
