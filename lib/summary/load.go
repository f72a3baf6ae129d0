// Copyright 2026 The SCR Fetch Authors
// SPDX-License-Identifier: Apache-2.0

package summary

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/scr-hpc/scrfetch/lib/attrtree"
	"github.com/scr-hpc/scrfetch/lib/codec"
	"github.com/scr-hpc/scrfetch/lib/container"
	"github.com/scr-hpc/scrfetch/lib/fabric"
)

// FileName is the name of the summary document within a checkpoint
// directory. The wire encoding is CBOR under Core Deterministic
// Encoding, decoded directly into an *attrtree.Node (spec §6: "any
// self-describing format as long as fetches and writes interoperate
// within the same deployment").
const FileName = "summary.scr"

// Document is the strongly-typed façade spec §9 calls for at the
// boundary of the Summary Loader: the rest of the fetch core works
// against Dataset, Containers, and Files rather than raw tree keys.
type Document struct {
	Dataset DatasetHeader

	// Containers is nil in non-container mode. Keyed by container id.
	Containers map[int]container.Container

	// Files is this rank's own FILE subtree: filename → file-record.
	// In non-container mode every file-record child has had PATH set
	// to the checkpoint directory.
	Files *attrtree.Node
}

// Load runs the Summary Loader collective (spec §4.4) across every
// rank reachable through f. Every rank must call Load; it returns a
// non-nil error on every rank if rank 0 cannot read or parse the
// summary document, or if the dataset header is invalid.
func Load(f *fabric.Fabric, checkpointDir string) (*Document, error) {
	var root *attrtree.Node
	var loadErr error
	if f.Role() == fabric.RoleCoordinator {
		root, loadErr = readSummaryFile(checkpointDir)
	}

	if err := broadcastStatus(f, loadErr); err != nil {
		if loadErr != nil {
			return nil, fmt.Errorf("summary: rank 0 failed to load %s: %w", checkpointDir, loadErr)
		}
		return nil, err
	}

	var datasetSrc *attrtree.Node
	var containerSrc *attrtree.Node
	bySenderRank := map[int]*attrtree.Node{}

	if f.Role() == fabric.RoleCoordinator {
		datasetSrc, _ = root.Get(KeyDataset)
		containerSrc, _ = root.Get(KeyContainer)

		rank2file, ok := root.Get(KeyRank2File)
		if !ok {
			return nil, fmt.Errorf("summary: %s missing %s", checkpointDir, KeyRank2File)
		}
		for _, rank := range rank2file.SortedIntKeys() {
			perRank, _ := rank2file.Get(strconv.Itoa(rank))
			fileNode, ok := perRank.Get(KeyFile)
			if !ok {
				fileNode = attrtree.New()
			}
			bySenderRank[rank] = fileNode
		}
	}

	datasetTree, err := attrtree.Broadcast(f, datasetSrc)
	if err != nil {
		return nil, fmt.Errorf("summary: broadcasting %s: %w", KeyDataset, err)
	}
	header, err := ParseDatasetHeader(datasetTree)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}

	containerTree, err := attrtree.Broadcast(f, containerSrc)
	if err != nil {
		return nil, fmt.Errorf("summary: broadcasting %s: %w", KeyContainer, err)
	}

	files, err := attrtree.Exchange(f, nil, bySenderRank)
	if err != nil {
		return nil, fmt.Errorf("summary: exchanging %s: %w", KeyRank2File, err)
	}

	doc := &Document{Dataset: header, Files: files}

	if containerTree.Len() > 0 {
		containers, err := parseContainers(containerTree)
		if err != nil {
			return nil, fmt.Errorf("summary: parsing %s: %w", KeyContainer, err)
		}
		doc.Containers = containers
	} else {
		annotatePath(files, checkpointDir)
	}

	return doc, nil
}

// ParseDatasetHeader extracts the DatasetHeader façade from a raw
// DATASET subtree. DatasetID and CheckpointID are mandatory (spec §3:
// "a dataset lacking checkpoint_id is rejected by the core").
func ParseDatasetHeader(tree *attrtree.Node) (DatasetHeader, error) {
	datasetID, err := tree.Int(KeyDatasetID)
	if err != nil {
		return DatasetHeader{}, fmt.Errorf("%s: %w", KeyDatasetID, err)
	}
	checkpointID, err := tree.Int(KeyCheckpointID)
	if err != nil {
		return DatasetHeader{}, fmt.Errorf("%s: %w", KeyCheckpointID, err)
	}

	header := DatasetHeader{DatasetID: datasetID, CheckpointID: checkpointID}
	if name, err := tree.StringValue(KeyName); err == nil {
		header.Name = name
	}
	if totalRanks, err := tree.Int(KeyTotalRanks); err == nil {
		header.TotalRanks = totalRanks
	}
	return header, nil
}

// readSummaryFile checks the checkpoint directory is readable and
// parses its summary document.
func readSummaryFile(checkpointDir string) (*attrtree.Node, error) {
	if _, err := os.Stat(checkpointDir); err != nil {
		return nil, fmt.Errorf("unreadable checkpoint directory: %w", err)
	}

	path := filepath.Join(checkpointDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary document %s: %w", path, err)
	}

	root, err := attrtree.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing summary document %s: %w", path, err)
	}

	version, err := root.Int(KeyVersion)
	if err != nil {
		return nil, fmt.Errorf("summary document %s missing %s", path, KeyVersion)
	}
	if version < MinSupportedVersion {
		return nil, fmt.Errorf("summary document %s version %d is below minimum %d", path, version, MinSupportedVersion)
	}

	if _, ok := root.Get(KeyDataset); !ok {
		return nil, fmt.Errorf("summary document %s missing %s", path, KeyDataset)
	}
	if _, ok := root.Get(KeyRank2File); !ok {
		return nil, fmt.Errorf("summary document %s missing %s", path, KeyRank2File)
	}

	return root, nil
}

// broadcastStatus sends whether rank 0's load succeeded to every rank
// as a single status word (spec §4.4: "failure is broadcast as a
// single status word. On non-success, all ranks abandon.").
func broadcastStatus(f *fabric.Fabric, loadErr error) error {
	var payload []byte
	if f.Role() == fabric.RoleCoordinator {
		data, err := codec.Marshal(loadErr == nil)
		if err != nil {
			return fmt.Errorf("summary: encoding status word: %w", err)
		}
		payload = data
	}

	data, err := f.Broadcast(payload)
	if err != nil {
		return fmt.Errorf("summary: broadcasting status word: %w", err)
	}

	var ok bool
	if err := codec.Unmarshal(data, &ok); err != nil {
		return fmt.Errorf("summary: decoding status word: %w", err)
	}
	if !ok {
		return fmt.Errorf("summary: rank 0 failed to load the checkpoint directory")
	}
	return nil
}

func parseContainers(tree *attrtree.Node) (map[int]container.Container, error) {
	result := make(map[int]container.Container, tree.Len())
	for _, id := range tree.SortedIntKeys() {
		child, ok := tree.Get(strconv.Itoa(id))
		if !ok {
			continue
		}
		name, err := child.StringValue(KeyName)
		if err != nil {
			return nil, fmt.Errorf("container %d: %s: %w", id, KeyName, err)
		}
		size, err := child.ByteCount(KeySize)
		if err != nil {
			return nil, fmt.Errorf("container %d: %s: %w", id, KeySize, err)
		}
		result[id] = container.Container{Path: name, Size: int64(size)}
	}
	return result, nil
}

// annotatePath sets PATH on every file record to checkpointDir (spec
// §4.4: "in non-container mode, each rank annotates every file record
// with PATH = checkpoint_directory").
func annotatePath(files *attrtree.Node, checkpointDir string) {
	files.Each(func(_ string, record *attrtree.Node) bool {
		record.SetString(KeyPath, checkpointDir)
		return true
	})
}
