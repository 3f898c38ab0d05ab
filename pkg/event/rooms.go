package event

// Room keys follow the "<scope>:<id>" convention. Every authenticated
// connection sits in its user room and, when affiliated, its org room;
// property rooms are joined and left on client request.

func UserRoom(userID string) string { return "user:" + userID }

func OrgRoom(orgID string) string { return "org:" + orgID }

func PropertyRoom(propertyID string) string { return "property:" + propertyID }
