package utils

// Chat member statuses, https://core.telegram.org/bots/api#chatmember
const (
	ChatMemberStatusCreator       = "creator"
	ChatMemberStatusAdministrator = "administrator"
	ChatMemberStatusMember        = "member"
	ChatMemberStatusRestricted    = "restricted"
	ChatMemberStatusLeft          = "left"
	ChatMemberStatusBanned        = "kicked"

	ErrBlockedByUser    = "Forbidden: bot was blocked by the user"
	ErrNotStartedByUser = "Forbidden: bot can't initiate conversation with a user"
)
