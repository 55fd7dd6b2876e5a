/*
NAME
  wqm.go

DESCRIPTION
  wqm.go parses the weight-quantization matrix data shared by the AVS2 and
  AVS3 sequence headers: a load flag gating either 80 inline ue(v)-coded
  coefficients (4x4 plus 8x8) or the shared normative default matrices from
  package tables.

AUTHORS
  AVS Probe Contributors
*/

// Package wqm parses the AVS2/AVS3 weight-quantization matrix syntax.
package wqm

import (
	"github.com/avsprobe/avsmeta/internal/fieldreader"
	"github.com/avsprobe/avsmeta/tables"
)

// Result holds the outcome of parsing weight_quant_enable_flag and, when
// set, the matrix it selected or loaded.
type Result struct {
	Enabled bool
	Custom  bool
	M4x4    [4][4]int
	M8x8    [8][8]int
}

// Parse reads weight_quant_enable_flag and, if set, load_seq_weight_quant_data_flag
// followed by either 16+64 ue(v) coefficients or the default matrices.
func Parse(r *fieldreader.R) Result {
	enabled := r.Bool()
	if !enabled {
		return Result{Enabled: false}
	}

	loadFlag := r.Bool()
	if !loadFlag {
		return Result{Enabled: true, Custom: false, M4x4: tables.DefaultWQM4x4, M8x8: tables.DefaultWQM8x8}
	}

	var m4 [4][4]int
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m4[i][j] = int(r.UE())
		}
	}
	var m8 [8][8]int
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			m8[i][j] = int(r.UE())
		}
	}
	return Result{Enabled: true, Custom: true, M4x4: m4, M8x8: m8}
}
