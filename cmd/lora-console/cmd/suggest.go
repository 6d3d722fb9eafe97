package cmd

import (
	"fmt"

	"lora-console/core/presets"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func suggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest hyperparameters for a profile and a GPU memory size",
		Long: `Prints the hyperparameters a profile expands to, with the batch size,
rank and precision suggested for the given VRAM applied on top. The output
is a training block that can be pasted into a job spec.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _ := cmd.Flags().GetString("profile")
			vram, _ := cmd.Flags().GetFloat64("vram")
			if vram < 0 {
				return fmt.Errorf("vram must not be negative")
			}

			form := presets.NewForm()
			if err := form.ApplyProfile(presets.Profile(profile)); err != nil {
				return fmt.Errorf("%v (known: %v)", err, presets.Profiles())
			}
			form.VRAMGB = vram
			suggestion := form.ApplyVRAM()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s profile, %g GB VRAM: %s\n", profile, vram, suggestion)
			raw, err := yaml.Marshal(map[string]interface{}{
				"training": trainingBlock{
					Hyperparameters: form.Hyperparameters(),
					Precision:       form.Precision,
				},
			})
			if err != nil {
				return errors.Wrap(err, "failed to encode suggestion")
			}
			_, err = out.Write(raw)
			return err
		},
	}
	cmd.Flags().String("profile", string(presets.ProfilePortrait), "training profile")
	cmd.Flags().Float64("vram", 24, "GPU memory in GB")
	return cmd
}

type trainingBlock struct {
	presets.Hyperparameters `yaml:",inline"`
	Precision               presets.Precision `yaml:"precision"`
}
