package bot

import "errors"

var ErrUnknownStatus = errors.New("unknown chat member status")
