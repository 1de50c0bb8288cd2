// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"strconv"

	"github.com/bureau-foundation/bootsign/protocol"
)

// Job is one accepted submission bound to its topology. It is not
// modified after creation.
type Job struct {
	ID         string
	Inputs     map[string][]byte
	Parameters protocol.Parameters
	Topology   *Topology
}

func newJob(submission *protocol.Submission, topology *Topology) *Job {
	inputs := make(map[string][]byte, len(submission.InputFiles))
	for _, file := range submission.InputFiles {
		inputs[file.Name] = append([]byte(nil), file.Bytes...)
	}
	return &Job{
		ID:         submission.ID,
		Inputs:     inputs,
		Parameters: submission.Parameters,
		Topology:   topology,
	}
}

// Variables returns the ${name} values stage specs may reference.
func (j *Job) Variables() map[string]string {
	return map[string]string{
		"jobId":           j.ID,
		"imageType":       j.Parameters.ImageType,
		"partitionSize":   strconv.FormatInt(j.Parameters.PartitionSize, 10),
		"platformVersion": strconv.Itoa(j.Parameters.PlatformVersion),
		"backend":         string(j.Parameters.Backend),
	}
}
