package errors

import "errors"

var (
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrVoteNotFound      = errors.New("vote not found")
	ErrDuplicateProposal = errors.New("proposal id already exists")
	ErrInvalidParams     = errors.New("invalid proposal parameters")
	ErrInvalidChoice     = errors.New("invalid vote choice")
	ErrInvalidPower      = errors.New("voting power must be positive")
	ErrAlreadyVoted      = errors.New("voter already voted on this proposal")
	ErrVotingClosed      = errors.New("voting window is closed")
	ErrVotingStillActive = errors.New("voting window is still active")
	ErrAlreadyExecuted   = errors.New("proposal already finalized")
	ErrProposalRejected  = errors.New("proposal did not pass")
	ErrExecutionFailed   = errors.New("decision execution failed")
	ErrInvalidTransition = errors.New("invalid proposal status transition")
	ErrOracleUnavailable = errors.New("voting power oracle unavailable")
	ErrConflict          = errors.New("governance state conflict")
)
