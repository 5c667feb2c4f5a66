package doctype

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		filename string
		want     Type
	}{
		{
			name:     "filename precedence over empty content",
			text:     "",
			filename: "patient_dexa_scan.pdf",
			want:     DEXA,
		},
		{
			name:     "filename beats conflicting content",
			text:     "blood test results and biomarkers",
			filename: "vo2_assessment.pdf",
			want:     VO2,
		},
		{
			name:     "dxa alias in filename",
			text:     "",
			filename: "DXA-2024.pdf",
			want:     DEXA,
		},
		{
			name:     "case insensitive filename",
			text:     "",
			filename: "Patient_HRV_Report.PDF",
			want:     HRV,
		},
		{
			name:     "content bone density",
			text:     "The scan shows bone density within the expected range.",
			filename: "report.pdf",
			want:     DEXA,
		},
		{
			name:     "content vo2 max",
			text:     "Measured VO2 max of 52 ml/kg/min during the test.",
			filename: "report.pdf",
			want:     VO2,
		},
		{
			name:     "content heart rate variability",
			text:     "Overnight heart rate variability was reduced.",
			filename: "report.pdf",
			want:     HRV,
		},
		{
			name:     "content laboratory",
			text:     "Laboratory panel collected fasting.",
			filename: "report.pdf",
			want:     LAB,
		},
		{
			name:     "precedence dexa over lab in content",
			text:     "Body composition summary with laboratory values attached.",
			filename: "report.pdf",
			want:     DEXA,
		},
		{
			name:     "no match",
			text:     "General consultation notes.",
			filename: "notes.pdf",
			want:     General,
		},
		{
			name:     "empty everything",
			text:     "",
			filename: "",
			want:     General,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text, tt.filename); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
