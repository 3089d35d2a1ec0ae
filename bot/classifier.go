package bot

import (
	"fmt"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/girafe-ai/keeper-bot/utils"
)

// Transition is the semantic meaning of a before/after chat member status
// pair. Only Joined and Left are actionable.
type Transition int

const (
	// TransitionNone means the update carried no change at all and must be
	// ignored by the caller.
	TransitionNone Transition = iota
	// TransitionNoChange means the status token changed but the user's
	// presence did not, e.g. member → administrator.
	TransitionNoChange
	TransitionJoined
	TransitionLeft
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionNoChange:
		return "no change"
	case TransitionJoined:
		return "joined"
	case TransitionLeft:
		return "left"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}

// ClassifyMembership classifies a raw chat member update.
func ClassifyMembership(upd *gotgbot.ChatMemberUpdated) (Transition, error) {
	oldMember := upd.OldChatMember.MergeChatMember()
	newMember := upd.NewChatMember.MergeChatMember()
	return classifyStatusChange(oldMember.Status, newMember.Status, oldMember.IsMember, newMember.IsMember)
}

// classifyStatusChange maps a before/after status pair to a Transition. The
// is_member flags only matter for the "restricted" status, where they decide
// whether the restricted user is still inside the chat.
func classifyStatusChange(oldStatus, newStatus string, oldIsMember, newIsMember bool) (Transition, error) {
	wasPresent, err := isPresent(oldStatus, oldIsMember)
	if err != nil {
		return TransitionNone, err
	}
	nowPresent, err := isPresent(newStatus, newIsMember)
	if err != nil {
		return TransitionNone, err
	}

	if oldStatus == newStatus && oldIsMember == newIsMember {
		return TransitionNone, nil
	}

	switch {
	case !wasPresent && nowPresent:
		return TransitionJoined, nil
	case wasPresent && !nowPresent:
		return TransitionLeft, nil
	default:
		return TransitionNoChange, nil
	}
}

func isPresent(status string, isMember bool) (bool, error) {
	switch status {
	case utils.ChatMemberStatusMember,
		utils.ChatMemberStatusAdministrator,
		utils.ChatMemberStatusCreator:
		return true, nil
	case utils.ChatMemberStatusRestricted:
		return isMember, nil
	case utils.ChatMemberStatusLeft,
		utils.ChatMemberStatusBanned:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
}
