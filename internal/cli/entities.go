package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/models"
)

// render prints a view as JSON or as a field table. Field errors are reported
// on stderr; the readable fields are still printed.
func (a *app) render(cmd *cobra.Command, view any, rows [][2]string, viewErr error) error {
	if viewErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", viewErr)
	}
	if a.jsonOutput {
		return printJSON(cmd.OutOrStdout(), view)
	}
	return printFields(cmd.OutOrStdout(), rows)
}

func dateString(v *entity.Date) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func intString(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func newPatientCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "patient ID",
		Short: "Show a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := models.NewPatientView(cmd.Context(), a.graph.Patient(args[0]))
			if v == nil {
				return err
			}
			return a.render(cmd, v, [][2]string{
				{"ID", v.ID},
				{"PATIENT ID", v.PatientID},
				{"NAME", v.Name},
				{"BIRTH DATE", dateString(v.BirthDate)},
				{"SEX", v.Sex},
				{"STUDIES", strings.Join(v.Studies, ", ")},
			}, err)
		},
	}
}

func newStudyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "study ID",
		Short: "Show a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := models.NewStudyView(cmd.Context(), a.graph.Study(args[0]))
			if v == nil {
				return err
			}
			return a.render(cmd, v, [][2]string{
				{"ID", v.ID},
				{"STUDY ID", v.StudyID},
				{"STUDY UID", v.InstanceUID},
				{"DESCRIPTION", v.Description},
				{"DATE", dateString(v.Date)},
				{"TIME", v.Time},
				{"ACCESSION", v.AccessionNumber},
				{"PATIENT", v.Patient},
				{"SERIES", strings.Join(v.Series, ", ")},
			}, err)
		},
	}
}

func newSeriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "series ID",
		Short: "Show a series and its middle instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series := a.graph.Series(args[0])
			v, err := models.NewSeriesView(cmd.Context(), series)
			if v == nil {
				return err
			}
			stable := ""
			if v.IsStable != nil {
				stable = strconv.FormatBool(*v.IsStable)
			}
			preview, _, perr := series.PreviewURL(cmd.Context())
			if perr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", perr)
			}
			return a.render(cmd, v, [][2]string{
				{"ID", v.ID},
				{"SERIES UID", v.InstanceUID},
				{"MODALITY", v.Modality},
				{"MANUFACTURER", v.Manufacturer},
				{"PROTOCOL", v.Protocol},
				{"DESCRIPTION", v.Description},
				{"NUMBER", v.Number},
				{"DATE", dateString(v.Date)},
				{"STATUS", v.Status},
				{"STABLE", stable},
				{"STUDY", v.Study},
				{"INSTANCES", strconv.Itoa(len(v.Instances))},
				{"PREVIEW", preview},
			}, err)
		},
	}
}

func newInstanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "instance ID",
		Short: "Show an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := models.NewInstanceView(cmd.Context(), a.graph.Instance(args[0]))
			if v == nil {
				return err
			}
			return a.render(cmd, v, [][2]string{
				{"ID", v.ID},
				{"SOP UID", v.SOPInstanceUID},
				{"NUMBER", v.InstanceNumber},
				{"INDEX", intString(v.Index)},
				{"FILE SIZE", intString(v.FileSize)},
				{"SERIES", v.Series},
				{"PREVIEW", v.PreviewURL},
			}, err)
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send STUDY MODALITY",
		Short: "Send a study to a configured DICOM modality",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.graph.Study(args[0]).SendTo(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Study %s sent to %s.\n", args[0], args[1])
			return nil
		},
	}
}

func newModalitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modalities",
		Short: "List configured DICOM modalities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			modalities, err := a.client.Modalities(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), modalities)
			}
			for _, m := range modalities {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}
