// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package summary

// Key names used by the summary document's attribute tree (spec §6).
// A version-6 summary document is rooted at a node bearing Version,
// with DATASET, optional CONTAINER, and RANK2FILE children.
const (
	KeyVersion   = "VERSION"
	KeyDataset   = "DATASET"
	KeyContainer = "CONTAINER"
	KeyRank2File = "RANK2FILE"
	KeyRank      = "RANK"
	KeyFile      = "FILE"

	KeyDatasetID    = "DATASET_ID"
	KeyCheckpointID = "CHECKPOINT_ID"
	KeyName         = "NAME"
	KeyTotalRanks   = "TOTAL_RANKS"

	KeySize     = "SIZE"
	KeyCRC      = "CRC"
	KeyComplete = "COMPLETE"
	KeyPath     = "PATH"
	KeyNoFetch  = "NOFETCH"
	KeySegment  = "SEGMENT"
	KeyLength   = "LENGTH"
	KeyID       = "ID"
	KeyOffset   = "OFFSET"
)

// MinSupportedVersion is the oldest summary document version this
// loader accepts (spec §3: "version ≥ 6").
const MinSupportedVersion = 6

// DatasetHeader is the strongly-typed façade spec §9 calls for at the
// boundary of the Summary Loader, wrapping the raw DATASET subtree so
// the rest of the fetch core never handles its keys directly.
type DatasetHeader struct {
	DatasetID    int64
	CheckpointID int64
	Name         string
	TotalRanks   int64
}
