package matrix

import (
	"slices"
	"testing"
)

const changesCatalog = `
[[tool]]
name = "yosys"
version = "0.38"
url = "https://example.com/yosys.git"
commit = "c"
paths = ["setup/install-yosys.sh"]

[[tool]]
name = "openroad"
version = "2.0"
url = "https://example.com/openroad.git"
commit = "c"
context = "docker/tools/openroad"

[[tool]]
name = "klayout"
version = "0.28"
url = "https://example.com/klayout.git"
commit = "c"
paths = ["setup/common/**"]
`

func TestMatchChanged(t *testing.T) {
	c := mustCatalog(t, changesCatalog)

	tests := []struct {
		name    string
		changed []string
		want    []string
	}{
		{"nothing", nil, nil},
		{"unrelated file", []string{"README.md"}, nil},
		{"build context", []string{"docker/yosys/Dockerfile"}, []string{"yosys"}},
		{"custom context", []string{"docker/tools/openroad/Dockerfile"}, []string{"openroad"}},
		{"extra path", []string{"setup/install-yosys.sh"}, []string{"yosys"}},
		{"glob path", []string{"setup/common/apt.sh"}, []string{"klayout"}},
		{"dot slash prefix", []string{"./docker/yosys/patches/fix.patch"}, []string{"yosys"}},
		{
			"multiple tools",
			[]string{"docker/yosys/Dockerfile", "setup/common/apt.sh"},
			[]string{"klayout", "yosys"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchChanged(c, tt.changed)
			if err != nil {
				t.Fatalf("MatchChanged() error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("MatchChanged(%v) = %v, want %v", tt.changed, got, tt.want)
			}
		})
	}
}

func TestMatchChangedInvalidPattern(t *testing.T) {
	c := mustCatalog(t, `
[[tool]]
name = "broken"
version = "1"
url = "https://example.com/broken.git"
commit = "c"
paths = ["setup/[oops"]
`)

	_, err := MatchChanged(c, []string{"setup/x"})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestReadChangedFile(t *testing.T) {
	data := []byte("docker/yosys/Dockerfile\n\n# comment\n  setup/install-yosys.sh  \n")
	got := ReadChangedFile(data)
	want := []string{"docker/yosys/Dockerfile", "setup/install-yosys.sh"}
	if !slices.Equal(got, want) {
		t.Errorf("ReadChangedFile() = %v, want %v", got, want)
	}
}
