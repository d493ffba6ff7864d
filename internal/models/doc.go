// Package models defines the core domain models for splitledger.
//
// # Documents
//
// Persistence is document shaped: there are two top-level collections.
//   - User: a registered account with its contacts and device push token
//   - Group: a group document embedding Members and Expenses; every Expense
//     embeds its Participants and Images
//
// A single read of a Group therefore returns its full expense history.
//
// # References
//
// Relationships are stored as ID strings (UUID format), never as pointers.
// Handlers that need display data resolve IDs into UserRef values through the
// view types in views.go.
//
// # Soft delete
//
// Members and Participants carry an IsDeleted flag. A member that still has
// active participation in any expense is flagged rather than removed, so past
// expenses keep pointing at a valid member. See ShouldHardDelete.
package models
