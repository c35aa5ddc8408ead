package transaction

import (
	"strings"

	"github.com/tasksql/taskdb/internal/connector"
	"github.com/xwb1989/sqlparser"
)

// inferModel decides which side of the cluster an implicit transaction
// belongs on. A statement the SQL parser accepts is classified by its
// parsed shape; DDL and other statements sqlparser rejects fall back to a
// keyword match, grounded on the same first-keyword heuristic the
// Connector already uses to classify SELECT-like statements.
func inferModel(sqlText string) connector.Role {
	stmt, err := sqlparser.Parse(sqlText)
	if err == nil {
		switch stmt.(type) {
		case *sqlparser.Select:
			return connector.RoleRead
		case *sqlparser.Insert, *sqlparser.Update, *sqlparser.Delete:
			return connector.RoleWrite
		}
	}
	return inferModelByKeyword(sqlText)
}

var writeKeywords = map[string]bool{
	"update":   true,
	"replace":  true,
	"delete":   true,
	"insert":   true,
	"drop":     true,
	"grant":    true,
	"truncate": true,
	"alter":    true,
	"create":   true,
}

func inferModelByKeyword(sqlText string) connector.Role {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n(")
	end := strings.IndexAny(trimmed, " \t\r\n(")
	if end < 0 {
		end = len(trimmed)
	}
	keyword := strings.ToLower(trimmed[:end])
	if writeKeywords[keyword] {
		return connector.RoleWrite
	}
	return connector.RoleRead
}
