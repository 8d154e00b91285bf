package pipeline

import "path"

// Matches reports whether the trigger event starts a run for this pipeline.
// Push events match listed branches exactly and tag patterns by glob; pull
// requests match their target branch; manual dispatch requires the dispatch
// trigger to be enabled.
func (d *Definition) Matches(evt TriggerEvent) bool {
	if d == nil {
		return false
	}

	switch evt.Kind {
	case TriggerPush:
		if evt.RefType == RefTag {
			return matchesAnyGlob(d.Triggers.Push.Tags, evt.Ref)
		}
		return containsString(d.Triggers.Push.Branches, evt.Ref)
	case TriggerPullRequest:
		return containsString(d.Triggers.PullRequest.Branches, evt.Ref)
	case TriggerManual:
		return d.Triggers.Dispatch
	default:
		return false
	}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func matchesAnyGlob(patterns []string, value string) bool {
	for _, pattern := range patterns {
		ok, err := matchGlob(pattern, value)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func matchGlob(pattern, value string) (bool, error) {
	return path.Match(pattern, value)
}
