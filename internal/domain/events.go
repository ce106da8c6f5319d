package domain

const (
	// EventFavoritesChanged is published with the sorted favorite id list.
	EventFavoritesChanged = "favorites:changed"
	// EventContentRefreshed is published with the refreshed []ContentItem.
	EventContentRefreshed = "content:refreshed"
	// EventPeerReachability is published with the new reachability bool.
	EventPeerReachability = "peer:reachability"
)
