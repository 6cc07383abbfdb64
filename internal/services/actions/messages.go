package actions

import (
	"fmt"
	"strings"

	"github.com/ternarybob/tcsync/internal/models"
)

// Messages shown to uploaders. Wording is what operators already know from earlier emails.
const (
	ReasonAlreadyExists   = "It appears the user already exists in our system."
	SolutionAlreadyExists = "Please verify if the data might have been uploaded previously."

	ReasonFieldsMismatch   = "Email, phone number, or birthdate did not match our records."
	SolutionFieldsMismatch = "Please confirm these details and resubmit them accurately."

	ReasonNotFound   = "No corresponding user information was found in Training Connect."
	SolutionNotFound = "Please verify the accuracy of the submission and try again."

	ReasonMissingFirstName   = "Registration entry is incomplete without a first name."
	SolutionMissingFirstName = "Please provide this critical information and resubmit."

	ReasonMissingLastName   = "A last name is required for the registration process."
	SolutionMissingLastName = "Kindly update this information at your earliest convenience."

	ReasonMissingUserID   = "This record is not linked to an existing user."
	SolutionMissingUserID = "Please upload this user again from the user list."

	ReasonBirthDate   = `It appears there was an issue converting the "date of birth" provided.`
	SolutionBirthDate = "We would appreciate it if you could verify the format and resubmit the information."

	ReasonCourseNotFound   = "The course name provided does not match our records."
	SolutionCourseNotFound = "Please correct the course name and resubmit the certificate."

	ReasonCertificateUnconfirmed   = "Training Connect did not confirm that this certificate was saved."
	SolutionCertificateUnconfirmed = "Please check the student's certificates in Training Connect before uploading it again."

	SolutionSaveFailed = "Please try again with different information."

	SolutionPlatformErrors = "Our developers are already on it and we aim to resolve this promptly. " +
		"We will keep you updated on the progress and let you know once the issue has been resolved."

	ReasonUpdateFailed   = "Unable to update user in the database"
	SolutionUpdateFailed = "Additional information is required to proceed. Please upload this user manually."
)

func missingField(label string) *models.WorkerError {
	return models.DataQuality(
		fmt.Sprintf("It appears we are missing the %q.", label),
		fmt.Sprintf("Please specify the %s for this student and resubmit the information.", label),
	)
}

func invalidChoice(label string) *models.WorkerError {
	return models.DataQuality(
		fmt.Sprintf("It appears there was an issue with the %q provided.", label),
		fmt.Sprintf("We would appreciate it if you could verify the %s and resubmit the information.", label),
	)
}

func saveFailed(detail string) *models.WorkerError {
	return models.DataQuality(fmt.Sprintf("Unable to save the certificate due to [%s].", detail), SolutionSaveFailed)
}

func platformErrors(messages []string) *models.WorkerError {
	return models.DataQuality(
		fmt.Sprintf("We encountered some platform-specific errors: [%s]. Please address these issues and resubmit the data.",
			strings.Join(messages, ", ")),
		SolutionPlatformErrors,
	)
}
