package report

// displayNames shortens the long-form AWS service names Cost Explorer
// returns into the labels engineers actually use.
var displayNames = map[string]string{
	"Amazon Elastic Compute Cloud - Compute":              "EC2 - Compute",
	"EC2 - Other":                                         "EC2 - Other",
	"Amazon Elastic Compute Cloud":                        "EC2",
	"Amazon Simple Storage Service":                       "S3",
	"Amazon Relational Database Service":                  "RDS",
	"AWS Lambda":                                          "Lambda",
	"Amazon CloudFront":                                   "CloudFront",
	"Amazon Route 53":                                     "Route 53",
	"Amazon Virtual Private Cloud":                        "VPC",
	"Amazon CloudWatch":                                   "CloudWatch",
	"AWS CloudTrail":                                      "CloudTrail",
	"Amazon Elastic Load Balancing":                       "ELB",
	"Amazon ElastiCache":                                  "ElastiCache",
	"Amazon Elastic Container Service":                    "ECS",
	"Amazon Elastic Kubernetes Service":                   "EKS",
	"Amazon Elastic Container Service for Kubernetes":     "EKS",
	"AWS Key Management Service":                          "KMS",
	"Amazon Elastic Block Store":                          "EBS",
	"Amazon Elastic File System":                          "EFS",
	"AWS Secrets Manager":                                 "Secrets Manager",
	"AWS Systems Manager":                                 "Systems Manager",
	"Amazon API Gateway":                                  "API Gateway",
	"Amazon Simple Notification Service":                  "SNS",
	"Amazon Simple Queue Service":                         "SQS",
	"AWS Identity and Access Management Access Analyzer":  "IAM Access Analyzer",
	"AWS Certificate Manager":                             "ACM",
	"Amazon GuardDuty":                                    "GuardDuty",
	"AWS Config":                                          "Config",
	"AWS WAF":                                             "WAF",
	"Tax":                                                 "Tax",
}

// DisplayServiceName maps a Cost Explorer service name to its short label,
// falling back to the raw name for anything unmapped.
func DisplayServiceName(service string) string {
	if short, ok := displayNames[service]; ok {
		return short
	}
	return service
}
