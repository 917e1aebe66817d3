package stack

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatch"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudwatchactions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssnssubscriptions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsssm"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/bounan/matcher/config"
)

const (
	metricNamespace = "Bounan/Matcher"
	metricErrors    = "MatcherErrors"
)

// MatcherStack declares everything the matcher worker runs against: an
// IAM user for the worker, the notification queue, references to the
// already-deployed Bounan lambdas, the worker log group with its two
// alarms, a long-lived access key, and the runtime configuration
// parameter.
type MatcherStack struct {
	awscdk.Stack

	Resolved *config.Resolved

	User              awsiam.User
	Queue             awssqs.Queue
	LoanApi           awslambda.IFunction
	GetSeriesToMatch  awslambda.IFunction
	UpdateVideoScenes awslambda.IFunction
	LogGroup          awslogs.LogGroup
	AccessKey         awsiam.CfnAccessKey
	Parameter         awsssm.StringParameter
}

// NewMatcherStack builds the stack. Construction is fixed-order and
// branch-free; any failure aborts synthesis.
func NewMatcherStack(scope constructs.Construct, id string, resolved *config.Resolved, props *awscdk.StackProps) *MatcherStack {
	s := &MatcherStack{
		Stack:    awscdk.NewStack(scope, jsii.String(id), props),
		Resolved: resolved,
	}

	s.createUser()
	s.createQueue()
	s.importFunctions()
	s.createLogGroup()
	s.createAlarms()
	s.createAccessKey()
	s.createParameter()
	s.addOutputs()

	return s
}

func (s *MatcherStack) createUser() {
	s.User = awsiam.NewUser(s.Stack, jsii.String("MatcherUser"), &awsiam.UserProps{})
}

// createQueue subscribes the notification queue to the topic on which
// other Bounan stacks announce newly registered videos.
func (s *MatcherStack) createQueue() {
	s.Queue = awssqs.NewQueue(s.Stack, jsii.String("VideoRegisteredQueue"), &awssqs.QueueProps{
		RetentionPeriod: awscdk.Duration_Hours(jsii.Number(4)),
	})

	topic := awssns.Topic_FromTopicArn(s.Stack,
		jsii.String("VideoRegisteredTopic"),
		s.Resolved.VideoRegisteredTopicArn,
	)
	topic.AddSubscription(awssnssubscriptions.NewSqsSubscription(s.Queue, &awssnssubscriptions.SqsSubscriptionProps{}))

	s.Queue.GrantConsumeMessages(s.User)
}

func (s *MatcherStack) importFunctions() {
	s.LoanApi = awslambda.Function_FromFunctionArn(s.Stack,
		jsii.String("LoanApiFunction"),
		s.Resolved.LoanApiFunctionArn,
	)
	s.GetSeriesToMatch = awslambda.Function_FromFunctionName(s.Stack,
		jsii.String("GetSeriesToMatchFunction"),
		s.Resolved.GetSeriesToMatchLambdaName,
	)
	s.UpdateVideoScenes = awslambda.Function_FromFunctionName(s.Stack,
		jsii.String("UpdateVideoScenesFunction"),
		s.Resolved.UpdateVideoScenesLambdaName,
	)

	s.LoanApi.GrantInvoke(s.User)
	s.GetSeriesToMatch.GrantInvoke(s.User)
	s.UpdateVideoScenes.GrantInvoke(s.User)
}

func (s *MatcherStack) createLogGroup() {
	s.LogGroup = awslogs.NewLogGroup(s.Stack, jsii.String("MatcherLogGroup"), &awslogs.LogGroupProps{
		Retention:     awslogs.RetentionDays_ONE_WEEK,
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})

	s.LogGroup.GrantWrite(s.User)
}

// createAlarms derives two alarms from the worker log group: one on
// logged errors, one on the log falling silent. Each alarm notifies
// its own topic with a single e-mail subscription.
func (s *MatcherStack) createAlarms() {
	errorsMetric := s.LogGroup.AddMetricFilter(jsii.String("ErrorsFilter"), &awslogs.MetricFilterOptions{
		FilterPattern:   awslogs.FilterPattern_AnyTerm(jsii.String("ERROR")),
		MetricNamespace: jsii.String(metricNamespace),
		MetricName:      jsii.String(metricErrors),
		MetricValue:     jsii.String("1"),
	}).Metric(&awscloudwatch.MetricOptions{
		Statistic: jsii.String("sum"),
		Period:    awscdk.Duration_Minutes(jsii.Number(1)),
	})

	errorsAlarm := errorsMetric.CreateAlarm(s.Stack, jsii.String("ErrorsAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmDescription:   jsii.String("The matcher logged an error"),
		Threshold:          jsii.Number(1),
		EvaluationPeriods:  jsii.Number(1),
		ComparisonOperator: awscloudwatch.ComparisonOperator_GREATER_THAN_OR_EQUAL_TO_THRESHOLD,
		TreatMissingData:   awscloudwatch.TreatMissingData_NOT_BREACHING,
	})
	errorsAlarm.AddAlarmAction(awscloudwatchactions.NewSnsAction(
		s.newAlarmTopic("ErrorsAlarmTopic"),
	))

	// Silence is itself an alarm condition: the worker emits a
	// rate-limited operating log line, so no incoming events within
	// two minutes means the worker is down.
	livenessMetric := awscloudwatch.NewMetric(&awscloudwatch.MetricProps{
		Namespace:  jsii.String("AWS/Logs"),
		MetricName: jsii.String("IncomingLogEvents"),
		DimensionsMap: &map[string]*string{
			"LogGroupName": s.LogGroup.LogGroupName(),
		},
		Statistic: jsii.String("sum"),
		Period:    awscdk.Duration_Minutes(jsii.Number(2)),
	})

	livenessAlarm := livenessMetric.CreateAlarm(s.Stack, jsii.String("LivenessAlarm"), &awscloudwatch.CreateAlarmOptions{
		AlarmDescription:   jsii.String("The matcher stopped logging"),
		Threshold:          jsii.Number(1),
		EvaluationPeriods:  jsii.Number(1),
		ComparisonOperator: awscloudwatch.ComparisonOperator_LESS_THAN_THRESHOLD,
		TreatMissingData:   awscloudwatch.TreatMissingData_BREACHING,
	})
	livenessAlarm.AddAlarmAction(awscloudwatchactions.NewSnsAction(
		s.newAlarmTopic("LivenessAlarmTopic"),
	))
}

func (s *MatcherStack) newAlarmTopic(id string) awssns.Topic {
	topic := awssns.NewTopic(s.Stack, jsii.String(id), &awssns.TopicProps{})
	topic.AddSubscription(awssnssubscriptions.NewEmailSubscription(
		s.Resolved.AlertEmail,
		&awssnssubscriptions.EmailSubscriptionProps{},
	))
	return topic
}

func (s *MatcherStack) createAccessKey() {
	s.AccessKey = awsiam.NewCfnAccessKey(s.Stack, jsii.String("MatcherAccessKey"), &awsiam.CfnAccessKeyProps{
		UserName: s.User.UserName(),
	})
}

func (s *MatcherStack) createParameter() {
	value, err := config.ParameterValue(s.Resolved, s.Queue.QueueUrl(), s.LogGroup.LogGroupName())
	if err != nil {
		panic(fmt.Sprintf("failed to serialise the runtime configuration: %v", err))
	}

	s.Parameter = awsssm.NewStringParameter(s.Stack, jsii.String("RuntimeConfigParameter"), &awsssm.StringParameterProps{
		ParameterName: jsii.String(config.ParameterName),
		StringValue:   jsii.String(value),
	})

	s.Parameter.GrantRead(s.User)
}

func (s *MatcherStack) addOutputs() {
	awscdk.NewCfnOutput(s.Stack, jsii.String("Config"), &awscdk.CfnOutputProps{
		Value: jsii.String(s.Resolved.String()),
	})

	dotenv := fmt.Sprintf("AWS_ACCESS_KEY_ID=%s;\nAWS_SECRET_ACCESS_KEY=%s;\nAWS_DEFAULT_REGION=%s;",
		*s.AccessKey.Ref(),
		*s.AccessKey.AttrSecretAccessKey(),
		*s.Stack.Region(),
	)
	awscdk.NewCfnOutput(s.Stack, jsii.String("dotenv"), &awscdk.CfnOutputProps{
		Value: jsii.String(dotenv),
	})
}
