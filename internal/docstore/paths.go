package docstore

import "strings"

// Document paths. Every entity lives under users/{uid}.

func UserPath(uid string) string {
	return "users/" + uid
}

func RoundPath(uid, roundID string) string {
	return UserPath(uid) + "/rounds/" + roundID
}

func TaskPath(uid, roundID, taskID string) string {
	return RoundPath(uid, roundID) + "/task/" + taskID
}

func TodayPath(uid, roundID, day string) string {
	return RoundPath(uid, roundID) + "/today/" + day
}

func TodayTaskPath(uid, roundID, day, taskID string) string {
	return TodayPath(uid, roundID, day) + "/task/" + taskID
}

// Parent returns the path of the enclosing document, or "" for a top level
// path like users/{uid}.
func Parent(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) <= 2 {
		return ""
	}
	return strings.Join(parts[:len(parts)-2], "/")
}

// InTree reports whether path is root or one of its descendants.
func InTree(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}
