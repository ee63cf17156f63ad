package gitcore

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	treeHashA   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	parentHashA = "cccccccccccccccccccccccccccccccccccccccc"
	parentHashB = "dddddddddddddddddddddddddddddddddddddddd"
	commitHashA = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestParseCommitBody_TwoParents(t *testing.T) {
	body := []byte("tree " + treeHashA + "\n" +
		"parent " + parentHashA + "\n" +
		"parent " + parentHashB + "\n" +
		"author A <a@x> 1700000000 +0000\n" +
		"committer C <c@x> 1700000001 +0000\n" +
		"\nSubject\n\nBody line.\n")

	commit, err := parseCommitBody(body, Hash(commitHashA))
	if err != nil {
		t.Fatalf("parseCommitBody failed: %v", err)
	}

	wantParents := []Hash{Hash(parentHashA), Hash(parentHashB)}
	if diff := cmp.Diff(wantParents, commit.Parents); diff != "" {
		t.Errorf("Parents mismatch (-want +got):\n%s", diff)
	}
	if commit.Tree != Hash(treeHashA) {
		t.Errorf("Tree: got %s", commit.Tree)
	}
	if commit.Title != "Subject" {
		t.Errorf("Title: got %q", commit.Title)
	}
	if commit.Body != "Body line." {
		t.Errorf("Body: got %q", commit.Body)
	}
	if commit.Author.Name != "A" || commit.Author.Email != "a@x" {
		t.Errorf("Author: got %+v", commit.Author)
	}
	if commit.Author.Timestamp != 1700000000 || commit.Author.Timezone != "+0000" {
		t.Errorf("Author time: got %+v", commit.Author)
	}
	if commit.Committer.Timestamp != 1700000001 {
		t.Errorf("Committer time: got %+v", commit.Committer)
	}
}

func TestParseCommitBody_NoParents(t *testing.T) {
	body := []byte("tree " + treeHashA + "\n" +
		"author A <a@x> 1700000000 +0000\n" +
		"committer C <c@x> 1700000000 +0000\n" +
		"\nInitial commit\n")

	commit, err := parseCommitBody(body, Hash(commitHashA))
	if err != nil {
		t.Fatalf("parseCommitBody failed: %v", err)
	}
	if len(commit.Parents) != 0 {
		t.Errorf("Parents: expected none, got %v", commit.Parents)
	}
	if commit.Title != "Initial commit" || commit.Body != "" {
		t.Errorf("message: got title %q body %q", commit.Title, commit.Body)
	}
}

func TestParseCommitBody_LeadingBlanksStrippedTrailingKept(t *testing.T) {
	body := []byte("tree " + treeHashA + "\n" +
		"author A <a@x> 1700000000 +0000\n" +
		"committer C <c@x> 1700000000 +0000\n" +
		"\nSubject\n\n\nBody\n\n")

	commit, err := parseCommitBody(body, Hash(commitHashA))
	if err != nil {
		t.Fatalf("parseCommitBody failed: %v", err)
	}
	if commit.Body != "Body\n" {
		t.Errorf("Body: got %q, want %q", commit.Body, "Body\n")
	}
}

func TestParseCommitBody_UnknownHeadersIgnored(t *testing.T) {
	body := []byte("tree " + treeHashA + "\n" +
		"author A <a@x> 1700000000 +0000\n" +
		"committer C <c@x> 1700000000 +0000\n" +
		"gpgsig -----BEGIN PGP SIGNATURE-----\n" +
		" iQEzBAABCAAdFiEE\n" +
		" -----END PGP SIGNATURE-----\n" +
		"encoding ISO-8859-1\n" +
		"\nSigned subject\n")

	commit, err := parseCommitBody(body, Hash(commitHashA))
	if err != nil {
		t.Fatalf("parseCommitBody failed: %v", err)
	}
	if commit.Title != "Signed subject" {
		t.Errorf("Title: got %q", commit.Title)
	}
}

func TestParseCommitBody_MissingRequiredHeaders(t *testing.T) {
	author := "author A <a@x> 1700000000 +0000\n"
	committer := "committer C <c@x> 1700000000 +0000\n"
	tree := "tree " + treeHashA + "\n"

	tests := []struct {
		name string
		body string
	}{
		{"no tree", author + committer + "\nmsg\n"},
		{"no author", tree + committer + "\nmsg\n"},
		{"no committer", tree + author + "\nmsg\n"},
		{"empty message", tree + author + committer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCommitBody([]byte(tt.body), Hash(commitHashA))
			if !errors.Is(err, ErrMalformedCommit) {
				t.Errorf("got %v, want ErrMalformedCommit", err)
			}
		})
	}
}

func TestParseIdentity_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no open bracket", "A a@x> 1700000000 +0000"},
		{"no close bracket", "A <a@x 1700000000 +0000"},
		{"no timestamp", "A <a@x>"},
		{"no timezone", "A <a@x> 1700000000"},
		{"bad timestamp", "A <a@x> soon +0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseIdentity(tt.line)
			if !errors.Is(err, ErrMalformedCommit) {
				t.Errorf("got %v, want ErrMalformedCommit", err)
			}
		})
	}
}

func TestParseIdentity_EmptyName(t *testing.T) {
	id, err := parseIdentity("<robot@ci> 1700000000 -0800")
	if err != nil {
		t.Fatalf("parseIdentity failed: %v", err)
	}
	if id.Name != "" || id.Email != "robot@ci" || id.Timezone != "-0800" {
		t.Errorf("got %+v", id)
	}
}

// encodeCommit re-emits a commit in the on-disk header format so the
// round-trip property can be checked without a writer in the library.
func encodeCommit(c *Commit) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&sb, "parent %s\n", p)
	}
	fmt.Fprintf(&sb, "author %s <%s> %d %s\n", c.Author.Name, c.Author.Email, c.Author.Timestamp, c.Author.Timezone)
	fmt.Fprintf(&sb, "committer %s <%s> %d %s\n", c.Committer.Name, c.Committer.Email, c.Committer.Timestamp, c.Committer.Timezone)
	sb.WriteString("\n")
	sb.WriteString(c.Title)
	sb.WriteString("\n")
	if c.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(c.Body)
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

func TestParseCommitBody_RoundTrip(t *testing.T) {
	body := []byte("tree " + treeHashA + "\n" +
		"parent " + parentHashA + "\n" +
		"author Ada L <ada@x> 1700000000 +0200\n" +
		"committer Bob M <bob@x> 1700000500 -0530\n" +
		"\nFix the frobnicator\n\nIt was broken.\nNow it is not.\n")

	first, err := parseCommitBody(body, Hash(commitHashA))
	if err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	second, err := parseCommitBody(encodeCommit(first), Hash(commitHashA))
	if err != nil {
		t.Fatalf("second parse failed: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func TestIdentityTime(t *testing.T) {
	id := Identity{Name: "A", Email: "a@x", Timestamp: 1700000000, Timezone: "+0200"}
	when := id.Time()
	if when.Unix() != 1700000000 {
		t.Errorf("Unix: got %d", when.Unix())
	}
	_, offset := when.Zone()
	if offset != 2*3600 {
		t.Errorf("zone offset: got %d, want 7200", offset)
	}
}
