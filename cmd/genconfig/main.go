// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/statuscord/internal/config"
)

func main() {
	result, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}

	// go generate runs from the package directory (internal/config/).
	// With go.mod at root, ../../ reaches the repo root where configdata.go
	// embeds config.default.toml.
	outPath := "../../config.default.toml"
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote config.default.toml\n")
}

// render encodes cfg and annotates it with docs.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", err
	}

	lines := strings.Split(raw.String(), "\n")
	out := []string{
		"# ///////////////////////////////////////////////",
		"# Statuscord Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}

	// Current TOML section path for field lookup.
	var sectionStack []string
	// Doc keys already emitted, so omitted fields can be injected.
	emittedKeys := map[string]bool{}
	// Array tables get their doc comment once, above the first element.
	seenArrays := map[string]bool{}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[[") {
			section := strings.Trim(trimmed, "[] ")
			first := !seenArrays[section]
			seenArrays[section] = true
			emittedKeys[section] = true
			injectOmitted(&out, sectionStack, emittedKeys, docs)
			sectionStack = parseSectionPath(section)
			out = append(out, "")
			if first {
				appendComment(&out, docs[section].Comment)
			}
			out = append(out, trimmed)
			continue
		}

		if strings.HasPrefix(trimmed, "[") {
			injectOmitted(&out, sectionStack, emittedKeys, docs)

			section := strings.Trim(trimmed, "[] ")
			sectionStack = parseSectionPath(section)

			out = append(out, "")
			out = append(out, fmt.Sprintf("# ///// %s /////", sectionName(section)))
			out = append(out, "")
			appendComment(&out, docs[section].Comment)
			out = append(out, trimmed)
			continue
		}

		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		fullPath := key
		if len(sectionStack) > 0 {
			fullPath = strings.Join(sectionStack, ".") + "." + key
		}
		emittedKeys[fullPath] = true

		doc, ok := docs[fullPath]
		if !ok {
			out = append(out, trimmed)
			continue
		}
		appendComment(&out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}

	injectOmitted(&out, sectionStack, emittedKeys, docs)

	result := strings.Join(out, "\n")
	return strings.TrimRight(result, "\n") + "\n", nil
}

func appendComment(out *[]string, comment string) {
	if comment == "" {
		return
	}
	for _, cl := range strings.Split(comment, "\n") {
		*out = append(*out, "# "+cl)
	}
}

// injectOmitted appends commented-out entries for doc keys that belong to
// the current section but were not emitted by the TOML encoder (typically
// an omitempty field holding its zero value, or an empty array table). Keys
// are sorted for deterministic ordering.
func injectOmitted(out *[]string, sectionStack []string, emitted map[string]bool, docs map[string]config.FieldDoc) {
	if len(sectionStack) == 0 {
		return
	}
	prefix := strings.Join(sectionStack, ".") + "."

	var omitted []string
	for path := range docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if strings.Contains(rest, ".") {
			continue
		}
		if emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := docs[path]
		if doc.Comment == "" && len(doc.Alternatives) == 0 {
			emitted[path] = true
			continue
		}
		*out = append(*out, "")
		appendComment(out, doc.Comment)
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header (e.g. "autodetect.rules")
// into its component path segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns a human-readable display name for a TOML section header
// by extracting the last dotted segment, replacing underscores with spaces,
// and capitalizing its first letter. "control_plane" yields "Control plane".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := strings.ReplaceAll(parts[len(parts)-1], "_", " ")
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
