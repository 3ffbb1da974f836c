package common

// Well-known remote names. The document and folders are located by name, so
// changing these values orphans existing user data.
const (
	DefaultDocumentName          = "Tradebook Journal"
	DefaultRootFolderName        = "Tradebook"
	DefaultAttachmentsFolderName = "Attachments"
)

// Keys of the persisted local state.
const (
	StateKeyCredential = "credential"
	StateKeyDocumentID = "document_id"
	StateKeyFolderID   = "folder_id"
	StateKeySalt       = "state_salt"
)
