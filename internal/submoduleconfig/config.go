package submoduleconfig

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseOpenSubs returns the names of "[submodule \"name\"]" sections
// present in .git/config content, i.e. the subs git itself considers
// "open" (initialized).
func ParseOpenSubs(configText string) map[string]bool {
	names := map[string]bool{}
	for _, line := range strings.Split(configText, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := submoduleSectionName(line); ok {
			names[name] = true
		}
	}
	return names
}

func submoduleSectionName(line string) (string, bool) {
	if !strings.HasPrefix(line, "[submodule ") || !strings.HasSuffix(line, "]") {
		return "", false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "[submodule "), "]")
	return strings.Trim(inner, `"`), true
}

// ClearConfigEntry removes the "[submodule \"name\"]" stanza (and every
// line until the next "[section]" or EOF) from the config file at path.
// Idempotent: a no-op if the stanza is not present. Performs the rewrite
// via a temp-file-then-rename so a crash mid-write cannot corrupt the
// config.
func ClearConfigEntry(path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var kept []string
	skipping := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if sectionName, ok := submoduleSectionName(trimmed); ok {
			skipping = sectionName == name
			if skipping {
				continue
			}
		} else if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			skipping = false
		}
		if skipping {
			continue
		}
		kept = append(kept, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	tmp := path + ".tmp"
	content := strings.Join(kept, "\n")
	if len(kept) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// AppendSubmoduleStanza clears any prior stanza for name, then appends a
// fresh one recording path and url, matching the layout git writes for
// `git submodule add`.
func AppendSubmoduleStanza(path, name, url string) error {
	if err := ClearConfigEntry(path, name); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "[submodule %q]\n\turl = %s\n\tactive = true\n", name, url)
	return err
}
