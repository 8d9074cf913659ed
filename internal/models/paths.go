package models

import "strings"

// Collections under a user record.
const (
	UsersRoot   = "users"
	Friends     = "friends"
	Requests    = "friendRequests"
	ReviewsNode = "reviews"
)

// JoinPath joins path segments with "/".
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// UserPath is users/{id}.
func UserPath(id string) string { return JoinPath(UsersRoot, id) }

// FriendsPath is users/{owner}/friends.
func FriendsPath(owner string) string { return JoinPath(UsersRoot, owner, Friends) }

// FriendPath is users/{owner}/friends/{peer}.
func FriendPath(owner, peer string) string { return JoinPath(UsersRoot, owner, Friends, peer) }

// RequestsPath is users/{target}/friendRequests.
func RequestsPath(target string) string { return JoinPath(UsersRoot, target, Requests) }

// RequestPath is users/{target}/friendRequests/{requester}.
func RequestPath(target, requester string) string {
	return JoinPath(UsersRoot, target, Requests, requester)
}

// ReviewsPath is users/{author}/reviews.
func ReviewsPath(author string) string { return JoinPath(UsersRoot, author, ReviewsNode) }

// ReviewPath is users/{author}/reviews/{id}.
func ReviewPath(author, id string) string { return JoinPath(UsersRoot, author, ReviewsNode, id) }
