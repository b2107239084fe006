package utils

import "os"

// Home returns the linkstats home directory without a trailing slash,
// creating it when missing. LINKSTATS_HOME overrides ~/.linkstats.
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	home += "/.linkstats"

	if customHome := os.Getenv("LINKSTATS_HOME"); customHome != "" {
		home = customHome
	}

	if _, err := os.Stat(home); err != nil {
		if os.IsNotExist(err) {
			perm := os.FileMode(0o700)
			err := os.Mkdir(home, perm)
			if err != nil {
				return "", err
			}
		} else {
			return "", err
		}
	}

	return home, nil
}
