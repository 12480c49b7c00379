package session

import (
	"path/filepath"
	"strings"
)

// InjectOptions templates a session for one user and track variant. Blank
// fields leave the session untouched.
type InjectOptions struct {
	Username    string
	Trainer     string
	TrackSuffix string
}

// InjectData rewrites run identifiers and trainer file names. Applying the
// same options twice yields the same session.
func (s *Session) InjectData(o InjectOptions) {
	for i := range s.Steps {
		st := &s.Steps[i]
		switch {
		case st.Training != nil:
			t := st.Training
			t.RunID = withPrefix(o.Username, t.RunID)
			t.InitializeFrom = withPrefix(o.Username, t.InitializeFrom)
			if o.Trainer != "" {
				t.Trainer = o.Trainer
			}
			t.Trainer = withSuffix(t.Trainer, o.TrackSuffix)
		case st.Evaluation != nil:
			st.Evaluation.ModelRunID = withPrefix(o.Username, st.Evaluation.ModelRunID)
		}
	}
}

func withPrefix(user, id string) string {
	if user == "" || id == "" || strings.HasPrefix(id, user+"_") {
		return id
	}
	return user + "_" + id
}

// withSuffix inserts _suffix before the file extension.
func withSuffix(name, suffix string) string {
	if name == "" || suffix == "" {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if strings.HasSuffix(base, "_"+suffix) {
		return name
	}
	return base + "_" + suffix + ext
}
