package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cog-neurophys-lab/dh5io/dh5"
)

type cli struct {
	t       *testing.T
	dir     string
	config  string
	environ map[string]string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	config := filepath.Join(dir, "config.toml")
	body := "operator = \"tester\"\nlog_level = \"error\"\nboards = [\"Board A\"]\n"
	if err := os.WriteFile(config, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return &cli{
		t:       t,
		dir:     dir,
		config:  config,
		environ: map[string]string{"DH5_CATALOG": filepath.Join(dir, "catalog.db")},
	}
}

func (c *cli) run(args ...string) (code int, stdout, stderr string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	code = run(append([]string{"-config", c.config}, args...), &out, &errOut, c.environ)
	return code, out.String(), errOut.String()
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	code, stdout, stderr := c.run(args...)
	if code != 0 {
		c.t.Fatalf("dh5 %v exited %d: %s", args, code, stderr)
	}
	return stdout
}

func TestCreateInfoValidate(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "session.dh5")

	out := c.mustRun("create", path)
	if !strings.Contains(out, "created") {
		t.Errorf("create output = %q", out)
	}
	if code, _, _ := c.run("create", path); code != 1 {
		t.Errorf("create on existing file exited %d, want 1", code)
	}

	out = c.mustRun("info", path)
	for _, want := range []string{"session.dh5", "0 CONT Groups", "000_create_file", "tester"} {
		if !strings.Contains(out, want) {
			t.Errorf("info lacks %q:\n%s", want, out)
		}
	}

	out = c.mustRun("info", "-format", "json", path)
	var s dh5.Summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("info json: %v\n%s", err, out)
	}
	if s.Version != 2 || len(s.Boards) != 1 || s.Boards[0] != "Board A" {
		t.Errorf("summary = %+v", s)
	}

	out = c.mustRun("validate", "-strict", path)
	if !strings.Contains(out, "VALID") {
		t.Errorf("validate output = %q", out)
	}
}

func TestValidateInvalidFile(t *testing.T) {
	c := newCLI(t)
	bogus := filepath.Join(c.dir, "bogus.dh5")
	if err := os.WriteFile(bogus, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, _ := c.run("validate", bogus)
	if code != 1 || !strings.Contains(out, "INVALID") {
		t.Errorf("validate bogus: code %d, output %q", code, out)
	}
}

func TestAddOperation(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "ops.dh5")
	c.mustRun("create", path)

	out := c.mustRun("add-operation", "-name", "filter", "-tool", "sorter", "-original-file", "raw.dh5", path)
	if !strings.Contains(out, "001_filter") {
		t.Errorf("add-operation output = %q", out)
	}
	if code, _, _ := c.run("add-operation", path); code != 2 {
		t.Errorf("add-operation without -name exited %d, want 2", code)
	}

	f, err := dh5.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ops, err := f.Operations()
	if err != nil || len(ops) != 2 {
		t.Fatalf("operations = %v, %v", ops, err)
	}
	if ops[1].Tool != "sorter" || ops[1].Operator != "tester" || ops[1].OriginalFilename != "raw.dh5" {
		t.Errorf("operation = %+v", ops[1])
	}
}

func TestTree(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "tree.dh5")
	c.mustRun("create", path)

	out := c.mustRun("tree", "-attrs", path)
	for _, want := range []string{
		"CONT_INDEX_ITEM (datatype) {time, offset}",
		"Operations/",
		"000_create_file/",
		"@ FILEVERSION",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("tree lacks %q:\n%s", want, out)
		}
	}
}

func TestAttrsAndLs(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "attrs.dh5")
	c.mustRun("create", path)

	out := c.mustRun("attrs", path)
	for _, want := range []string{
		"/@FILEVERSION = 2",
		`/@BOARDS = ["Board A"]`,
		`/Operations/000_create_file@Tool = "dh5io"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("attrs lacks %q:\n%s", want, out)
		}
	}

	out = c.mustRun("attrs", path, "/Operations/000_create_file@Operator name")
	if strings.TrimSpace(out) != `/Operations/000_create_file@Operator name = "tester"` {
		t.Errorf("attrs output = %q", out)
	}
	if code, _, _ := c.run("attrs", path, "/@MISSING"); code != 1 {
		t.Errorf("missing attribute exited %d, want 1", code)
	}

	f, err := dh5.OpenReadWrite(path)
	if err != nil {
		t.Fatal(err)
	}
	index := []dh5.ContIndexItem{{Time: 0, Offset: 0}}
	if _, err := f.CreateContGroup(1, [][]int16{{1, 2}, {3, 4}, {5, 6}}, index, 1000, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	out = c.mustRun("ls", path)
	for _, want := range []string{"/CONT1/DATA", "[3 2]", "/CONT1/INDEX", "{time, offset}"} {
		if !strings.Contains(out, want) {
			t.Errorf("ls lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "CONT_INDEX_ITEM") {
		t.Errorf("ls lists the committed datatype:\n%s", out)
	}
	if out := c.mustRun("ls", path, "/Operations"); strings.TrimSpace(out) != "" {
		t.Errorf("ls /Operations = %q, want nothing", out)
	}
}

func TestCatalogScanAndList(t *testing.T) {
	c := newCLI(t)
	data := filepath.Join(c.dir, "data")
	if err := os.MkdirAll(data, 0o755); err != nil {
		t.Fatal(err)
	}
	c.mustRun("create", filepath.Join(data, "a.dh5"))
	c.mustRun("create", filepath.Join(data, "b.dh5"))
	if err := os.WriteFile(filepath.Join(data, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(data, "broken.h5"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := c.mustRun("catalog", "scan", data)
	if !strings.Contains(out, "cataloged 2 files, skipped 1") {
		t.Errorf("scan output = %q", out)
	}

	out = c.mustRun("catalog", "list")
	if !strings.Contains(out, "a.dh5") || !strings.Contains(out, "b.dh5") || !strings.Contains(out, "2 files") {
		t.Errorf("list output:\n%s", out)
	}

	out = c.mustRun("catalog", "list", "-invalid")
	if !strings.Contains(out, "0 files") {
		t.Errorf("list -invalid output:\n%s", out)
	}

	c.mustRun("catalog", "remove", filepath.Join(data, "a.dh5"))
	out = c.mustRun("catalog", "list", "-format", "yaml")
	if strings.Contains(out, "a.dh5") || !strings.Contains(out, "b.dh5") {
		t.Errorf("list after remove:\n%s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("frobnicate")
	if code != 2 || !strings.Contains(stderr, "unknown command") {
		t.Errorf("code %d, stderr %q", code, stderr)
	}
}

func TestExitStatus(t *testing.T) {
	c := newCLI(t)
	file := filepath.Join(c.dir, "x.dh5")
	tests := []struct {
		args []string
		want int
	}{
		{[]string{"validate", "-nosuchflag", file}, 2},
		{[]string{"ls", "-l", file}, 2},
		{[]string{"catalog", "list", "-bogus"}, 2},
		{[]string{"info"}, 2},
		{[]string{"info", "-format", "xml", file}, 2},
		{[]string{"info", "-h"}, 0},
		{[]string{"info", file}, 1},
	}
	for _, tt := range tests {
		if code, _, stderr := c.run(tt.args...); code != tt.want {
			t.Errorf("dh5 %v exited %d, want %d: %s", tt.args, code, tt.want, stderr)
		}
	}
}
