package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/twaio/twaio/internal/session"
	"github.com/twaio/twaio/internal/xclient"
)

const (
	profileCommandUse          = "profile"
	profileCommandShort        = "Change the profile of the selected account"
	profileUpdateUse           = "update"
	profileUpdateShort         = "Update profile fields; omitted fields stay unchanged"
	profileImageUse            = "image <path>"
	profileImageShort          = "Upload a new profile picture"
	profileBannerUse           = "banner <path>"
	profileBannerShort         = "Upload a new profile banner"
	flagProfileName            = "name"
	flagProfileNameDesc        = "Display name"
	flagDescriptionName        = "description"
	flagDescriptionDesc        = "Bio"
	flagLocationName           = "location"
	flagLocationDesc           = "Location"
	flagBirthdateDayName       = "birthdate-day"
	flagBirthdateDayDesc       = "Birth day of month"
	flagBirthdateMonthName     = "birthdate-month"
	flagBirthdateMonthDesc     = "Birth month"
	flagBirthdateYearName      = "birthdate-year"
	flagBirthdateYearDesc      = "Birth year"
	profileUpdatedMessage      = "Profile updated\n"
	profileImageUpdatedFormat  = "Profile picture set from %s\n"
	profileBannerUpdatedFormat = "Profile banner set from %s\n"
)

func (application *Application) newProfileCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   profileCommandUse,
		Short: profileCommandShort,
	}
	command.AddCommand(
		application.newProfileUpdateCommand(),
		application.newActionCommand(profileImageUse, profileImageShort, 1, profileImageUpdatedFormat,
			func(ctx context.Context, accountSession *session.Session, args []string) error {
				return accountSession.UpdateProfileImage(ctx, args[0])
			}),
		application.newActionCommand(profileBannerUse, profileBannerShort, 1, profileBannerUpdatedFormat,
			func(ctx context.Context, accountSession *session.Session, args []string) error {
				return accountSession.UpdateProfileBanner(ctx, args[0])
			}),
	)
	return command
}

func (application *Application) newProfileUpdateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   profileUpdateUse,
		Short: profileUpdateShort,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			flags := command.Flags()
			update := xclient.ProfileUpdate{}
			update.Name, _ = flags.GetString(flagProfileName)
			update.Description, _ = flags.GetString(flagDescriptionName)
			update.Location, _ = flags.GetString(flagLocationName)
			update.BirthdateDay, _ = flags.GetString(flagBirthdateDayName)
			update.BirthdateMonth, _ = flags.GetString(flagBirthdateMonthName)
			update.BirthdateYear, _ = flags.GetString(flagBirthdateYearName)
			return application.runWithSession(command, func(ctx context.Context, accountSession *session.Session) error {
				if err := accountSession.UpdateProfile(ctx, update); err != nil {
					return err
				}
				application.printf(profileUpdatedMessage)
				return nil
			})
		},
	}
	command.Flags().String(flagProfileName, "", flagProfileNameDesc)
	command.Flags().String(flagDescriptionName, "", flagDescriptionDesc)
	command.Flags().String(flagLocationName, "", flagLocationDesc)
	command.Flags().String(flagBirthdateDayName, "", flagBirthdateDayDesc)
	command.Flags().String(flagBirthdateMonthName, "", flagBirthdateMonthDesc)
	command.Flags().String(flagBirthdateYearName, "", flagBirthdateYearDesc)
	return command
}
