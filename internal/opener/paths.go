package opener

import (
	"os"
	"path/filepath"

	"github.com/git-meta/git-meta/internal/deinit"
)

func subWorkDir(metaWorkDir, name string) string {
	return filepath.Join(metaWorkDir, name)
}

func subModulesDir(metaGitDir, name string) string {
	return filepath.Join(metaGitDir, "modules", name)
}

func readFileTolerant(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func deinitOne(gitDir, workDir, name string, sparse bool) error {
	return deinit.One(gitDir, workDir, name, sparse)
}
