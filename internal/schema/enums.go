package schema

type Access string

const (
	AccessCommon       Access = "Common"
	AccessProjectTeam  Access = "Project Team"
	AccessConfidential Access = "High Confidential"
)

type PMMStatus string

const (
	PMMPlanning PMMStatus = "planning"
	PMMApproved PMMStatus = "approved"
)

type PhaseType string

const (
	PhaseDesign     PhaseType = "DESIGN"
	PhaseProduction PhaseType = "PRODT"
	PhaseEngineer   PhaseType = "ENG"
)

type AssetType string

const (
	AssetExterior AssetType = "EXT"
	AssetInterior AssetType = "INT"
	AssetCommon   AssetType = "Common"
)

type TaskStatus string

const (
	TaskWaiting    TaskStatus = "wtg"
	TaskInProgress TaskStatus = "ip"
	TaskFinished   TaskStatus = "fin"
)

type MilestoneType string

const (
	MilestoneDateReceive MilestoneType = "Date Receive"
	MilestoneDateRelease MilestoneType = "Date Release"
	MilestoneReview      MilestoneType = "Review"
	MilestoneDR          MilestoneType = "DR"
)
